// Command reactdown renders and serves markdown documents with live
// component blocks.
package main

import (
	"fmt"
	"os"

	"github.com/livetemplate/reactdown/cmd/reactdown/commands"
)

const version = "0.1.0-dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	var err error
	switch command {
	case "render":
		err = commands.RenderCommand(args, os.Stdout)
	case "serve":
		err = commands.ServeCommand(args, os.Stdout)
	case "settings":
		err = commands.SettingsCommand(args, os.Stdout)
	case "version":
		fmt.Printf("reactdown version %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("reactdown - Markdown with live component blocks")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  reactdown render <file.md>                  Render a document to HTML")
	fmt.Println("  reactdown serve [directory]                 Start development server")
	fmt.Println("  reactdown settings get module-path          Show the module folder")
	fmt.Println("  reactdown settings set module-path <dir>    Set the module folder")
	fmt.Println("  reactdown settings suggest <query>          List matching folders")
	fmt.Println("  reactdown version                           Show version")
	fmt.Println("  reactdown help                              Show this help")
	fmt.Println()
	fmt.Println("Blocks:")
	fmt.Println("  ```reactjs   plain script        ```reactts   typed script")
	fmt.Println("  ```reactjsx  component markup    ```reacttsx  typed component markup")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  reactdown render notes/demo.md > demo.html")
	fmt.Println("  reactdown serve ./notes --watch --port 3000")
	fmt.Println("  reactdown settings set module-path wasm --dir ./notes")
}
