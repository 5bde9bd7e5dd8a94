// cmd/dexopt/main.go
package main

import (
	"fmt"
	"log"
	"os"

	"dexopt/cmd/dexopt/commands"
)

const VERSION = "0.1.0"

// Command aliases mapping
var commandAliases = map[string]string{
	"b": "build",
	"a": "analyze",
	"r": "regalloc",
	"s": "serve",
	"v": "version",
	"h": "help",
}

func main() {
	args := os.Args[1:]
	if len(args) == 0 {
		showUsage()
		return
	}

	cmd := args[0]
	if alias, ok := commandAliases[cmd]; ok {
		cmd = alias
		args[0] = alias
	}

	if cmd == "--help" || cmd == "-h" || cmd == "help" {
		showUsage()
		return
	}

	if cmd == "--version" || cmd == "-v" || cmd == "version" {
		fmt.Println("dexopt " + VERSION)
		return
	}

	switch cmd {
	case "build":
		if err := commands.BuildCommand(args[1:]); err != nil {
			log.Fatalf("Error: %v", err)
		}
	case "analyze":
		if err := commands.AnalyzeCommand(args[1:]); err != nil {
			log.Fatalf("Error: %v", err)
		}
	case "regalloc":
		if err := commands.RegallocCommand(args[1:]); err != nil {
			log.Fatalf("Error: %v", err)
		}
	case "serve":
		if err := commands.ServeCommand(args[1:]); err != nil {
			log.Fatalf("Error: %v", err)
		}
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		showUsage()
		os.Exit(1)
	}
}

func showUsage() {
	fmt.Println(`dexopt - Dalvik IR optimizer core

Usage:
  dexopt <command> [args]

Commands:
  build     (b)  build fixture methods' CFGs and print their shape
  analyze   (a)  run local + whole-program constant propagation
  regalloc  (r)  run the register allocator over the fixture methods
  serve     (s)  run the pipeline with a live websocket stats feed
  version   (v)  print the version
  help      (h)  show this message`)
}
