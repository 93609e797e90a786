package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/sandeepkv93/pickupd/internal/config"
)

const usage = `pickupd - order pickup reminders

USAGE:
    pickupd [--config PATH] [command] [args]

COMMANDS:
    tui                        Interactive reminder list (default)
    daemon                     Background scheduler and notification bridge
    add <order> <section...>   Create a reminder
    list                       Pending reminders, oldest first
    complete <ref>             Mark an order as picked up
    remove <ref>               Delete a reminder without completing it
    completed                  Recently picked up orders
    recheck                    Ask the daemon to check reminders now
    mcp                        Serve the reminder tools over MCP (stdio)
    config init [path]         Write the default configuration file

<ref> is a reminder id, an id prefix or an order number.
`

func main() {
	flags := flag.NewFlagSet("pickupd", flag.ContinueOnError)
	flags.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	configPath := flags.String("config", config.DefaultConfigPath, "config file (TOML or YAML)")
	if err := flags.Parse(os.Args[1:]); err != nil {
		if err == flag.ErrHelp {
			return
		}
		os.Exit(2)
	}

	args := flags.Args()
	cmd := "tui"
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}

	var err error
	switch cmd {
	case "tui":
		err = runTUI(*configPath)
	case "daemon":
		err = runDaemon(*configPath)
	case "mcp":
		err = runMCP(*configPath)
	case "config":
		err = runConfig(args)
	case "help", "-h", "--help":
		fmt.Print(usage)
	default:
		err = runCLI(*configPath, cmd, args)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "pickupd %s failed: %v\n", cmd, err)
		os.Exit(1)
	}
}

func runConfig(args []string) error {
	if len(args) == 0 || args[0] != "init" {
		return fmt.Errorf("usage: pickupd config init [path]")
	}
	path := ""
	if len(args) > 1 {
		path = args[1]
	}
	written, err := config.WriteDefault(path, false)
	if err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", written)
	return nil
}
