package main

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	logs "github.com/danmuck/smplog"

	"github.com/danmuck/p2p_rfc/src/peer"
)

func printCommands(defaultToken string) {
	logs.Printf("\n")
	logs.Titlef("--[ p2p_rfc | peer ]--\n\n")
	logs.Menuf("  add <id> [token] 	(register a local document)\n")
	logs.Menuf("  lookup <id> [token] 	(find holders of a document)\n")
	logs.Menuf("  list [token] 	(list the full directory)\n")
	logs.Menuf("  get <id> [token] 	(download from a holder)\n")
	logs.Menuf("  quit\n")
	logs.Printf("\n")
	logs.Dataf("  default token: %s\n", defaultToken)
}

// runLoop drives the interactive role. Every command ends in a concrete
// success or failure line and the loop keeps going after any failure.
func runLoop(input io.Reader, agent *peer.Agent, defaultToken string) {
	reader := bufio.NewReader(input)
	printCommands(defaultToken)

	for {
		logs.Promptf("\n> ")

		line, err := reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				return
			}
			logs.Warnf("failed to read command: %v", err)
			return
		}

		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		switch strings.ToLower(fields[0]) {
		case "quit", "q", "exit":
			return

		case "add":
			id, token, ok := idAndToken(fields, defaultToken)
			if !ok {
				continue
			}
			if err := agent.Add(id, token); err != nil {
				logs.StatusWarn("add failed: " + err.Error())
				continue
			}
			logs.Printf("registered document %d with the index server\n", id)

		case "lookup":
			id, token, ok := idAndToken(fields, defaultToken)
			if !ok {
				continue
			}
			holders, err := agent.Lookup(id, token)
			if err != nil {
				logs.StatusWarn("lookup failed: " + err.Error())
				continue
			}
			logs.Titlef("holders of document %d (%d):\n", id, len(holders))
			for i, h := range holders {
				logs.MenuItem(i, h.String(), false)
				logs.Printf("\n")
			}

		case "list":
			token := defaultToken
			if len(fields) > 1 {
				token = fields[1]
			}
			entries, err := agent.List(token)
			if err != nil {
				logs.StatusWarn("list failed: " + err.Error())
				continue
			}
			if len(entries) == 0 {
				logs.Println("Directory is empty.")
				continue
			}
			logs.Titlef("directory (%d):\n", len(entries))
			for _, e := range entries {
				logs.Dataf("  %d  %s\n", e.ID, e.Title)
			}

		case "get":
			id, token, ok := idAndToken(fields, defaultToken)
			if !ok {
				continue
			}
			holder, err := agent.Get(id, token)
			if err != nil {
				logs.StatusWarn("get failed: " + err.Error())
				continue
			}
			logs.Printf("document %d downloaded from %s\n", id, holder)

		case "help", "h":
			printCommands(defaultToken)

		default:
			logs.StatusWarn("unknown command: " + fields[0])
		}
	}
}

// idAndToken parses "<cmd> <id> [token]" fields, reporting bad input to
// the user rather than the caller.
func idAndToken(fields []string, defaultToken string) (int, string, bool) {
	if len(fields) < 2 {
		logs.StatusWarn(fields[0] + " wants a document id")
		return 0, "", false
	}
	id, err := strconv.Atoi(fields[1])
	if err != nil || id < 1 {
		logs.StatusWarn("document id must be a positive integer")
		return 0, "", false
	}
	token := defaultToken
	if len(fields) > 2 {
		token = fields[2]
	}
	return id, token, true
}
