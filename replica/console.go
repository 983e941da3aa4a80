package replica

import (
	"bufio"
	"fmt"
	"io"
	"pbft/ledger"
	"strings"
)

// RunConsole reads operator commands from in and writes responses to
// out until "quit" or end-of-input, per the fixed command set of
// spec.md §6. It is a thin frontend over the engine's own methods - no
// protocol state lives here, per spec.md §9's console/protocol
// separation note.
func (r *Replica) RunConsole(in io.Reader, out io.Writer) {
	scanner := bufio.NewScanner(in)
	fmt.Fprintf(out, "%s> ", r.ID)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			fmt.Fprintf(out, "%s> ", r.ID)
			continue
		}
		if r.runCommand(line, out) {
			return
		}
		fmt.Fprintf(out, "%s> ", r.ID)
	}
}

// runCommand executes one line, returning true if the console should
// stop (the "quit" command).
func (r *Replica) runCommand(line string, out io.Writer) bool {
	fields := strings.Fields(line)
	cmd := fields[0]
	switch cmd {
	case "status":
		fmt.Fprintf(out, "id=%s view=%d primary=%s byzantine=%s crashed=%v\n",
			r.ID, r.CurrentView(), r.PrimaryFor(r.CurrentView()), r.ByzantineID, r.IsCrashed())

	case "data":
		balances := r.Balances()
		for _, line := range balances {
			fmt.Fprintln(out, line)
		}

	case "list":
		for _, tx := range r.TxLog() {
			fmt.Fprintf(out, "%s %s\n", tx.TxID, ledger.StatusName(tx.Status))
		}

	case "tx":
		payload := parsePayload(fields[1:])
		txid, err := r.Submit(payload)
		if err != nil {
			fmt.Fprintln(out, "error:", err)
			break
		}
		fmt.Fprintln(out, "submitted", txid)

	case "progress":
		txid, ok := r.LatestPendingTxID()
		if !ok {
			fmt.Fprintln(out, "error: no pending transaction")
			break
		}
		if err := r.Progress(txid); err != nil {
			fmt.Fprintln(out, "error:", err)
		}

	case "prepare":
		r.consolePrepare(fields[1:], out)

	case "ack":
		r.consoleAck(fields[1:], out)

	case "crash":
		r.SetCrashed(true)
		fmt.Fprintln(out, "crashed")

	case "recover":
		r.Recover()
		fmt.Fprintln(out, "recovering")

	case "view":
		if len(fields) >= 2 && fields[1] == "change" {
			r.StartViewChange()
			fmt.Fprintln(out, "view change initiated")
		} else {
			fmt.Fprintln(out, "error: unknown command")
		}

	case "checkpoint":
		id, err := r.CoordinatedCheckpoint()
		if err != nil {
			fmt.Fprintln(out, "error:", err)
			break
		}
		fmt.Fprintln(out, "checkpoint", id)

	case "quit":
		fmt.Fprintln(out, "bye")
		return true

	default:
		fmt.Fprintln(out, "error: unknown command")
	}
	return false
}

// consolePrepare handles "prepare yes|no" and the Byzantine-only
// "prepare to <id> yes|no".
func (r *Replica) consolePrepare(args []string, out io.Writer) {
	txid, ok := r.LatestPendingTxID()
	if !ok {
		fmt.Fprintln(out, "error: no pending transaction")
		return
	}
	if len(args) >= 3 && args[0] == "to" {
		yes, ok := parseYesNo(args[2])
		if !ok {
			fmt.Fprintln(out, "error: expected yes or no")
			return
		}
		if err := r.CastPrepareTo(txid, args[1], yes); err != nil {
			fmt.Fprintln(out, "error:", err)
		}
		return
	}
	if len(args) < 1 {
		fmt.Fprintln(out, "error: expected yes or no")
		return
	}
	yes, ok := parseYesNo(args[0])
	if !ok {
		fmt.Fprintln(out, "error: expected yes or no")
		return
	}
	if err := r.CastPrepare(txid, yes); err != nil {
		fmt.Fprintln(out, "error:", err)
	}
}

// consoleAck handles "ack commit|abort" and "ack to <id> commit|abort".
func (r *Replica) consoleAck(args []string, out io.Writer) {
	txid, ok := r.LatestPendingTxID()
	if !ok {
		fmt.Fprintln(out, "error: no pending transaction")
		return
	}
	if len(args) >= 3 && args[0] == "to" {
		commit, ok := parseCommitAbort(args[2])
		if !ok {
			fmt.Fprintln(out, "error: expected commit or abort")
			return
		}
		if err := r.CastCommitVoteTo(txid, args[1], commit); err != nil {
			fmt.Fprintln(out, "error:", err)
		}
		return
	}
	if len(args) < 1 {
		fmt.Fprintln(out, "error: expected commit or abort")
		return
	}
	commit, ok := parseCommitAbort(args[0])
	if !ok {
		fmt.Fprintln(out, "error: expected commit or abort")
		return
	}
	if err := r.CastCommitVote(txid, commit); err != nil {
		fmt.Fprintln(out, "error:", err)
	}
}

func parseYesNo(s string) (bool, bool) {
	switch s {
	case "yes":
		return true, true
	case "no":
		return false, true
	default:
		return false, false
	}
}

func parseCommitAbort(s string) (bool, bool) {
	switch s {
	case "commit":
		return true, true
	case "abort":
		return false, true
	default:
		return false, false
	}
}

// parsePayload reads "tx" arguments of the form key=value into a
// payload map, e.g. "account=alice amount=100 operation=deposit".
func parsePayload(args []string) map[string]string {
	payload := make(map[string]string, len(args))
	for _, arg := range args {
		k, v, found := strings.Cut(arg, "=")
		if !found {
			continue
		}
		payload[k] = v
	}
	return payload
}

