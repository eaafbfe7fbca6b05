package jig

import "laser-align/pkg/geometry"

// DefaultName is the registry name of the stock 200mm jig.
const DefaultName = "default"

// DefaultJig returns the stock jig: a 200mm square engraving area with 40mm
// DICT_4X4_50 markers 0-3 centered on its corners.
//
//	[ID:3]  (0,200)      [ID:2]  (200,200)
//
//	          engraving area
//
//	[ID:0]  (0,0)        [ID:1]  (200,0)
func DefaultJig() *Config {
	const board = 200.0
	c, err := New(DefaultName, board, 40, "DICT_4X4_50", []Marker{
		{ID: 0, PositionMM: geometry.NewPoint2D(0, 0), Corner: "bottom-left"},
		{ID: 1, PositionMM: geometry.NewPoint2D(board, 0), Corner: "bottom-right"},
		{ID: 2, PositionMM: geometry.NewPoint2D(board, board), Corner: "top-right"},
		{ID: 3, PositionMM: geometry.NewPoint2D(0, board), Corner: "top-left"},
	})
	if err != nil {
		panic(err)
	}
	return c
}
