package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/yashagarwal4664/Integerated-salary-agent/internal/negotiation"
)

// runChat drives a single negotiation from a line-oriented reader until the
// candidate quits, the deal concludes, or input ends.
func runChat(ctx context.Context, orch *negotiation.Orchestrator, in io.Reader, out io.Writer) error {
	id := "negotiation-session-" + time.Now().Format("20060102150405")
	sess := negotiation.NewSession(id, slog.Default())

	fmt.Fprintln(out, "\nNegotiation agent active! Type your message as the candidate.\nType 'exit' to stop.")
	fmt.Fprintln(out)

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprintf(out, "Candidate (Turn %d): ", sess.Graph.TurnCount()+1)
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if cmd := strings.ToLower(input); cmd == "exit" || cmd == "quit" {
			slog.Info("session ended by user", "session_id", sess.ID)
			fmt.Fprintln(out, "Session ended.")
			fmt.Fprintln(out, "\n--- Final Negotiation Summary ---")
			fmt.Fprintln(out, sess.Graph.Summary())
			return nil
		}

		reply := orch.Handle(ctx, sess, input)
		if reply.Concluded {
			fmt.Fprintf(out, "\nEmployer Agent (Conclusion): %s\n\n", reply.Text)
			fmt.Fprintln(out, "--- Negotiation Concluded (Accepted) ---")
			fmt.Fprintln(out, sess.Graph.Summary())
			return nil
		}
		fmt.Fprintf(out, "\nEmployer Agent (Limit: $%d): %s\n\n", reply.Ceiling, reply.Text)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read candidate input: %w", err)
	}
	fmt.Fprintln(out, "\n--- Final Negotiation Summary ---")
	fmt.Fprintln(out, sess.Graph.Summary())
	return nil
}
