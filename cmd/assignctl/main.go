// assignctl is the command line client for assignd.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"inspector-rotation/internal/client"
	"inspector-rotation/internal/domain"

	"github.com/fatih/color"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	apiURL := os.Getenv("ASSIGN_API_URL")
	if apiURL == "" {
		apiURL = "http://localhost:8080"
	}
	c := client.New(apiURL, client.RetryPolicy{MaxRetries: 2, Backoff: 500 * time.Millisecond})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "inspectors":
		err = cmdInspectors(ctx, c, args)
	case "complaints":
		err = cmdComplaints(ctx, c, args)
	case "rotation":
		err = cmdRotation(ctx, c)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		if errors.Is(err, domain.ErrNoEligibleWorkers) {
			color.Yellow("No active inspectors: register or activate one first.\n")
		}
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	yellow := color.New(color.FgYellow)

	fmt.Println("Usage: assignctl <command> [args]")
	fmt.Println()
	yellow.Println("Commands:")
	fmt.Println("  inspectors                      List all inspectors")
	fmt.Println("  inspectors list                 List all inspectors")
	fmt.Println("  inspectors add --name N         Register an inspector (--email optional)")
	fmt.Println("  inspectors activate <id>        Put an inspector back into rotation")
	fmt.Println("  inspectors deactivate <id>      Take an inspector out of rotation")
	fmt.Println("  complaints                      List recent complaints")
	fmt.Println("  complaints list [--limit N]     List recent complaints")
	fmt.Println("  complaints submit --subject S   Submit a complaint (--description optional)")
	fmt.Println("  complaints show <id>            Show one complaint")
	fmt.Println("  complaints assign <id>          Assign a pending complaint")
	fmt.Println("  rotation                        Show the rotation pool and who is next")
	fmt.Println()
	yellow.Println("Environment:")
	fmt.Println("  ASSIGN_API_URL    assignd HTTP address (default: http://localhost:8080)")
	fmt.Println()
}

// flagValue returns the value following name (or its short form) in args.
func flagValue(args []string, name, short string) string {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == name || (short != "" && args[i] == short) {
			return args[i+1]
		}
	}
	return ""
}

func cmdInspectors(ctx context.Context, c *client.Client, args []string) error {
	if len(args) == 0 || args[0] == "list" {
		return cmdInspectorsList(ctx, c)
	}
	switch args[0] {
	case "add":
		name := flagValue(args[1:], "--name", "-n")
		if name == "" {
			return fmt.Errorf("--name is required")
		}
		insp, err := c.RegisterInspector(ctx, name, flagValue(args[1:], "--email", "-e"))
		if err != nil {
			return fmt.Errorf("RegisterInspector: %w", err)
		}
		color.New(color.FgGreen).Printf("Registered inspector %s (%s)\n", insp.Name, insp.ID)
		return nil
	case "activate", "deactivate":
		if len(args) < 2 {
			return fmt.Errorf("usage: assignctl inspectors %s <id>", args[0])
		}
		insp, err := c.SetInspectorActive(ctx, args[1], args[0] == "activate")
		if err != nil {
			return fmt.Errorf("SetInspectorActive: %w", err)
		}
		color.New(color.FgGreen).Printf("Inspector %s is now %s\n", insp.Name, activeLabel(insp.Active))
		return nil
	default:
		return fmt.Errorf("unknown inspectors subcommand: %s", args[0])
	}
}

func cmdInspectorsList(ctx context.Context, c *client.Client) error {
	list, err := c.ListInspectors(ctx)
	if err != nil {
		return fmt.Errorf("ListInspectors: %w", err)
	}

	cyan := color.New(color.FgCyan)
	fmt.Println()
	cyan.Println("  Inspectors")
	cyan.Println("  ----------")

	if len(list) == 0 {
		fmt.Println("  (no inspectors)")
		fmt.Println()
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  ID\tNAME\tEMAIL\tSTATUS")
	fmt.Fprintln(w, "  --\t----\t-----\t------")
	for _, insp := range list {
		fmt.Fprintf(w, "  %s\t%s\t%s\t%s\n", insp.ID, insp.Name, insp.Email, activeLabel(insp.Active))
	}
	w.Flush()
	fmt.Println()
	return nil
}

func cmdComplaints(ctx context.Context, c *client.Client, args []string) error {
	if len(args) == 0 || args[0] == "list" {
		limit := 20
		if len(args) > 0 {
			if v := flagValue(args[1:], "--limit", "-l"); v != "" {
				n, err := strconv.Atoi(v)
				if err != nil || n <= 0 {
					return fmt.Errorf("invalid --limit %q", v)
				}
				limit = n
			}
		}
		return cmdComplaintsList(ctx, c, limit)
	}

	switch args[0] {
	case "submit":
		subject := flagValue(args[1:], "--subject", "-s")
		if subject == "" {
			return fmt.Errorf("--subject is required")
		}
		complaint, err := c.SubmitComplaint(ctx, subject, flagValue(args[1:], "--description", "-d"))
		if err != nil {
			return fmt.Errorf("SubmitComplaint: %w", err)
		}
		printComplaint(complaint)
		return nil
	case "show", "assign":
		if len(args) < 2 {
			return fmt.Errorf("usage: assignctl complaints %s <id>", args[0])
		}
		get := c.GetComplaint
		if args[0] == "assign" {
			get = c.AssignComplaint
		}
		complaint, err := get(ctx, args[1])
		if err != nil {
			return err
		}
		printComplaint(complaint)
		return nil
	default:
		return fmt.Errorf("unknown complaints subcommand: %s", args[0])
	}
}

func cmdComplaintsList(ctx context.Context, c *client.Client, limit int) error {
	list, err := c.ListComplaints(ctx, limit)
	if err != nil {
		return fmt.Errorf("ListComplaints: %w", err)
	}

	cyan := color.New(color.FgCyan)
	fmt.Println()
	cyan.Println("  Recent Complaints")
	cyan.Println("  -----------------")

	if len(list) == 0 {
		fmt.Println("  (no complaints)")
		fmt.Println()
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  ID\tSUBJECT\tINSPECTOR\tCREATED")
	fmt.Fprintln(w, "  --\t-------\t---------\t-------")
	for _, cp := range list {
		inspector := cp.InspectorID
		if inspector == "" {
			inspector = "(pending)"
		}
		fmt.Fprintf(w, "  %s\t%s\t%s\t%s\n", truncate(cp.ID, 12), truncate(cp.Subject, 32), inspector, cp.CreatedAt.Format("Jan 02 15:04"))
	}
	w.Flush()
	fmt.Println()
	return nil
}

func printComplaint(cp *domain.Complaint) {
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	fmt.Println()
	fmt.Printf("  ID:        %s\n", cp.ID)
	fmt.Printf("  Subject:   %s\n", cp.Subject)
	if cp.Description != "" {
		fmt.Printf("  Details:   %s\n", cp.Description)
	}
	fmt.Printf("  Created:   %s\n", cp.CreatedAt.Format(time.RFC3339))
	if cp.Assigned() {
		green.Printf("  Inspector: %s\n", cp.InspectorID)
	} else {
		yellow.Println("  Inspector: (pending)")
	}
	fmt.Println()
}

func cmdRotation(ctx context.Context, c *client.Client) error {
	rot, err := c.Rotation(ctx)
	if err != nil {
		return fmt.Errorf("Rotation: %w", err)
	}

	cyan := color.New(color.FgCyan)
	green := color.New(color.FgGreen)

	fmt.Println()
	cyan.Println("  Rotation")
	cyan.Println("  --------")
	source := "recovered from history"
	if rot.Persisted {
		source = "persisted"
	}
	fmt.Printf("  Cursor: %d (%s)\n", rot.Cursor, source)

	if len(rot.Pool) == 0 {
		fmt.Println("  (no active inspectors)")
		fmt.Println()
		return nil
	}
	for i, insp := range rot.Pool {
		line := fmt.Sprintf("  %2d  %s  %s", i, insp.ID, insp.Name)
		if rot.Next != nil && insp.ID == rot.Next.ID {
			green.Println(line + "  <- next")
			continue
		}
		fmt.Println(line)
	}
	fmt.Println()
	return nil
}

func activeLabel(active bool) string {
	if active {
		return "active"
	}
	return "inactive"
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}
