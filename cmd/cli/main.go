package main

import (
	"flag"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"text/tabwriter"
	"time"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	c := newClient(apiURL(), loadToken())

	var err error
	switch command {
	case "auth":
		err = handleAuth(c, args)
	case "candidate":
		err = handleCandidate(c, args)
	case "track":
		err = trackPublic(c, args)
	case "account":
		err = handleAccount(c, args)
	case "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "✗ %v\n", err)
		os.Exit(1)
	}
}

func handleAuth(c *client, args []string) error {
	if len(args) < 1 {
		fmt.Println("Usage: visactl auth <login|logout|who>")
		return nil
	}

	switch args[0] {
	case "login":
		return login(c, args[1:])
	case "logout":
		if c.token != "" {
			_ = c.do("POST", "/auth/logout", nil, nil)
		}
		os.Remove(tokenFile())
		fmt.Println("✓ Logged out")
		return nil
	case "who":
		var me account
		if err := c.do("GET", "/auth/me", nil, &me); err != nil {
			return err
		}
		fmt.Printf("%s <%s> role=%s\n", me.Name, me.Email, me.Role)
		return nil
	}
	return fmt.Errorf("unknown auth command: %s", args[0])
}

func handleCandidate(c *client, args []string) error {
	if len(args) < 1 {
		fmt.Println("Usage: visactl candidate <list|get|status|stats>")
		return nil
	}

	switch args[0] {
	case "list":
		return listCandidates(c, args[1:])
	case "get":
		return getCandidate(c, args[1:])
	case "status":
		return setStatus(c, args[1:])
	case "stats":
		var stats map[string]any
		if err := c.do("GET", "/candidates/stats", nil, &stats); err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		for k, v := range stats {
			fmt.Fprintf(w, "%s\t%v\n", k, v)
		}
		return w.Flush()
	}
	return fmt.Errorf("unknown candidate command: %s", args[0])
}

func handleAccount(c *client, args []string) error {
	if len(args) < 1 || args[0] != "list" {
		fmt.Println("Usage: visactl account list")
		return nil
	}
	var accounts []account
	if err := c.do("GET", "/accounts", nil, &accounts); err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tEMAIL\tROLE\tACTIVE")
	for _, a := range accounts {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\n", a.ID, a.Name, a.Email, a.Role, a.IsActive)
	}
	return w.Flush()
}

func login(c *client, args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "password")
	fs.Parse(args)

	if *email == "" || *password == "" {
		fs.PrintDefaults()
		return fmt.Errorf("email and password are required")
	}

	var s session
	if err := c.do("POST", "/auth/login", map[string]string{"email": *email, "password": *password}, &s); err != nil {
		return err
	}
	if err := saveToken(s.Token); err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	fmt.Printf("✓ Logged in as: %s (%s, expires %s)\n", s.User.Email, s.User.Role, s.ExpiresAt)
	return nil
}

func listCandidates(c *client, args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	search := fs.String("search", "", "free-text search")
	status := fs.String("status", "", "status filter")
	page := fs.Int("page", 1, "page number")
	limit := fs.Int("limit", 20, "page size")
	tenant := fs.String("tenant", "", "owner only: narrow to one admin")
	fs.Parse(args)

	q := url.Values{}
	if *search != "" {
		q.Set("search", *search)
	}
	if *status != "" {
		q.Set("status", *status)
	}
	q.Set("page", strconv.Itoa(*page))
	q.Set("limit", strconv.Itoa(*limit))
	c.tenant = *tenant

	var res candidatePage
	if err := c.do("GET", "/candidates?"+q.Encode(), nil, &res); err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tAPPLICATION\tNAME\tCOUNTRY\tSTATUS\tVISA NUMBER")
	for _, cand := range res.Candidates {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			cand.ID, cand.ApplicationNumber, cand.FullName, cand.Country, cand.Status, cand.VisaNumber)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Printf("page %d of %d (%d total)\n", res.Page, res.Pages, res.Total)
	return nil
}

func getCandidate(c *client, args []string) error {
	if len(args) < 1 {
		fmt.Println("Usage: visactl candidate get <id>")
		return nil
	}
	var cand candidate
	if err := c.do("GET", "/candidates/"+url.PathEscape(args[0]), nil, &cand); err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Name\t%s\n", cand.FullName)
	fmt.Fprintf(w, "Application\t%s\n", cand.ApplicationNumber)
	fmt.Fprintf(w, "Country\t%s\n", cand.Country)
	fmt.Fprintf(w, "Visa type\t%s\n", cand.VisaType)
	fmt.Fprintf(w, "Status\t%s\n", cand.Status)
	fmt.Fprintf(w, "Visa number\t%s\n", cand.VisaNumber)
	fmt.Fprintf(w, "Issued\t%s\n", cand.VisaIssueDate)
	fmt.Fprintf(w, "Artifact\t%t\n", cand.HasArtifact)
	for _, h := range cand.History {
		fmt.Fprintf(w, "  %s\t%s by %s\n", h.Timestamp.Format(time.DateTime), h.Status, h.ChangedBy)
	}
	return w.Flush()
}

func setStatus(c *client, args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	note := fs.String("note", "", "history note")
	fs.Parse(args)
	if fs.NArg() < 2 {
		fmt.Println("Usage: visactl candidate status [-note text] <id> <status>")
		return nil
	}

	body := map[string]string{"status": fs.Arg(1)}
	if *note != "" {
		body["note"] = *note
	}
	var cand candidate
	if err := c.do("PATCH", "/candidates/"+url.PathEscape(fs.Arg(0)), body, &cand); err != nil {
		return err
	}
	fmt.Printf("✓ %s is now %s", cand.ApplicationNumber, cand.Status)
	if cand.VisaNumber != "" {
		fmt.Printf(" (visa number %s)", cand.VisaNumber)
	}
	fmt.Println()
	return nil
}

func trackPublic(c *client, args []string) error {
	fs := flag.NewFlagSet("track", flag.ExitOnError)
	identifier := fs.String("id", "", "application, passport or control number")
	dob := fs.String("dob", "", "date of birth (YYYY-MM-DD)")
	fs.Parse(args)

	if *identifier == "" || *dob == "" {
		fs.PrintDefaults()
		return fmt.Errorf("id and dob are required")
	}

	var view publicView
	if err := c.do("POST", "/public/track", map[string]string{"identifier": *identifier, "dateOfBirth": *dob}, &view); err != nil {
		return err
	}
	fmt.Printf("%s: %s visa for %s is %s\n", view.FullName, view.VisaType, view.Country, view.Status)
	if view.CanDownload {
		fmt.Printf("document ready: %s/public/download/%s?identifier=%s&dateOfBirth=%s\n",
			c.baseURL, view.CandidateID, url.QueryEscape(*identifier), url.QueryEscape(*dob))
	}
	return nil
}

func printUsage() {
	fmt.Print(`visactl - visa management CLI

Usage:
  visactl <command> [options]

Commands:
  auth       Session management (login, logout, who)
  candidate  Candidate records (list, get, status, stats)
  account    Account management (list)
  track      Public status lookup by identifier and date of birth
  help       Show this help message

Environment Variables:
  VISA_API    API endpoint (default: http://localhost:8080/api)

Examples:
  visactl auth login -email admin@example.com -password 'S3cret!pw'
  visactl candidate list -status Approved
  visactl candidate status 01J... Issued
  visactl track -id APP-1001 -dob 1990-05-17
`)
}
