// Command lbctl sends control commands to the laser software over UDP.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"laser-align/internal/device"
	"laser-align/internal/prefs"
	"laser-align/internal/version"
)

const usage = `Usage: lbctl [flags] <command> [args]

Commands:
  ping            check the laser software is listening
  status          print the status reply
  load <file>     load a file (-force closes the open one first)
  start           start the loaded job
  close           close the open file (-force discards changes)
  wait            ping until ready (-wait sets the limit)
  raw <command>   send a raw command and print the reply
`

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	p := prefs.Load()
	host := flag.String("host", p.String(prefs.KeyDeviceHost, device.DefaultHost), "Laser software host")
	port := flag.Int("port", device.DefaultPort, "Command port")
	replyPort := flag.Int("reply", device.DefaultReplyPort, "Local reply port")
	timeoutMS := flag.Int("timeout", p.Int(prefs.KeyDeviceTimeMS, int(device.DefaultTimeout/time.Millisecond)), "Reply timeout in ms")
	force := flag.Bool("force", false, "Use FORCELOAD / FORCECLOSE")
	wait := flag.Duration("wait", 10*time.Second, "Maximum wait for the wait command")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String("lbctl"))
		return
	}
	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(1)
	}

	c := device.NewClient(device.Config{
		Host:      *host,
		Port:      *port,
		ReplyPort: *replyPort,
		Timeout:   time.Duration(*timeoutMS) * time.Millisecond,
	})
	ctx := context.Background()

	var err error
	switch args[0] {
	case "ping":
		if err = c.Ping(ctx); err == nil {
			fmt.Println("Laser software is running")
		}
	case "status":
		var status string
		if status, err = c.Status(ctx); err == nil {
			fmt.Println(status)
		}
	case "load":
		if len(args) < 2 {
			log.Fatal("load needs a file")
		}
		if err = c.LoadFile(ctx, args[1], *force); err == nil {
			fmt.Printf("Loaded %s\n", args[1])
		}
	case "start":
		if err = c.Start(ctx); err == nil {
			fmt.Println("Job started")
		}
	case "close":
		if err = c.CloseFile(ctx, *force); err == nil {
			fmt.Println("File closed")
		}
	case "wait":
		if err = c.WaitForReady(ctx, *wait, 500*time.Millisecond); err == nil {
			fmt.Println("Laser software is ready")
		}
	case "raw":
		if len(args) < 2 {
			log.Fatal("raw needs a command")
		}
		var reply string
		if reply, err = c.Send(ctx, args[1]); err == nil {
			fmt.Println(reply)
		}
	default:
		flag.Usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}
