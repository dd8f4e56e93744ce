// Command rewardsctl is the operator client for rewardsd.
package main

import (
	"fmt"
	"io"
	"os"
	"strings"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

type command struct {
	summary string
	run     func(args []string, stdout, stderr io.Writer) int
}

var commands = map[string]command{
	"token":           {"Mint a signed bearer token", runToken},
	"account":         {"Show an account settled to now", runAccount},
	"global":          {"Show the global integrator", runGlobal},
	"epoch":           {"Show the current epoch", runEpoch},
	"report":          {"Show a distribution report", runReport},
	"configure-epoch": {"Register the next epoch", runConfigureEpoch},
	"distribute":      {"Distribute the current epoch's coupon", runDistribute},
	"claim":           {"Claim an account's rewards", runClaim},
	"pause":           {"Pause distributions and claims", runPause(true)},
	"unpause":         {"Resume distributions and claims", runPause(false)},
	"price":           {"Post a conversion price observation", runPrice},
	"export":          {"Download every report as csv, jsonl or parquet", runExport},
	"init-params":     {"Write a default ledger params file", runInitParams},
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage())
		return 1
	}
	cmd, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[0])
		fmt.Fprint(stderr, usage())
		return 1
	}
	return cmd.run(args[1:], stdout, stderr)
}

func usage() string {
	names := []string{"token", "init-params", "account", "global", "epoch", "report",
		"configure-epoch", "distribute", "claim", "pause", "unpause", "price", "export"}
	b := &strings.Builder{}
	fmt.Fprintln(b, "Usage: rewardsctl <command> [options]")
	fmt.Fprintln(b, "Commands:")
	for _, name := range names {
		fmt.Fprintf(b, "  %-16s %s\n", name, commands[name].summary)
	}
	fmt.Fprintln(b, "Environment: REWARDSD_URL, REWARDSD_TOKEN, REWARDSD_HMAC_SECRET")
	return b.String()
}
