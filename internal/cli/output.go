package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"
)

// Output handles formatting output based on the configured format
type Output struct {
	format string
}

// NewOutput creates a new Output formatter
func NewOutput(format string) *Output {
	return &Output{format: format}
}

// Print outputs data in the configured format
func (o *Output) Print(data any) {
	if o.format == "json" {
		o.printJSON(data)
	} else {
		o.printText(data)
	}
}

// PrintError outputs an error
func (o *Output) PrintError(err error) {
	if o.format == "json" {
		errData := map[string]any{
			"error": map[string]string{
				"message": err.Error(),
			},
		}
		data, _ := json.Marshal(errData)
		fmt.Fprintln(os.Stderr, string(data))
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
	}
}

// PrintMessage outputs a simple message
func (o *Output) PrintMessage(msg string) {
	if o.format == "json" {
		data, _ := json.Marshal(map[string]string{"message": msg})
		fmt.Println(string(data))
	} else {
		fmt.Println(msg)
	}
}

func (o *Output) printJSON(data any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(data)
}

func (o *Output) printText(data any) {
	switch v := data.(type) {
	case User:
		o.printUser(v)
	case []User:
		o.printUsers(v)
	case AuthResult:
		o.printAuthResult(v)
	case []RankingEntry:
		o.printRanking(v)
	case ClickResult:
		o.printClickResult(v)
	case HealthResult:
		o.printHealthResult(v)
	case Stats:
		o.printStats(v)
	default:
		// Fallback to JSON for unknown types
		o.printJSON(data)
	}
}

// User response type (matches API)
type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Counter   int64     `json:"counter"`
	IsBlocked bool      `json:"isBlocked"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
}

// AuthResult combines user and token
type AuthResult struct {
	User      User      `json:"user"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// RankingEntry response type
type RankingEntry struct {
	Rank     int    `json:"rank"`
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Counter  int64  `json:"counter"`
}

// ClickResult summarises a click session
type ClickResult struct {
	Sent    int   `json:"sent"`
	Counter int64 `json:"counter"`
}

// HealthResult response type
type HealthResult struct {
	Status  string `json:"status"`
	Storage string `json:"storage"`
}

// Stats response type
type Stats struct {
	Connections      int `json:"connections"`
	BoundConnections int `json:"boundConnections"`
	ActiveUsers      int `json:"activeUsers"`
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func (o *Output) printUser(u User) {
	fmt.Printf("User: %s (%s)\n", u.Username, u.ID)
	fmt.Printf("Role: %s\n", u.Role)
	fmt.Printf("Counter: %d\n", u.Counter)
	fmt.Printf("Blocked: %s\n", yesNo(u.IsBlocked))
	fmt.Printf("Online: %s\n", yesNo(u.IsActive))
}

func (o *Output) printUsers(users []User) {
	if len(users) == 0 {
		fmt.Println("No users")
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tUSERNAME\tROLE\tCOUNTER\tBLOCKED\tONLINE")
	for _, u := range users {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n", u.ID, u.Username, u.Role, u.Counter, yesNo(u.IsBlocked), yesNo(u.IsActive))
	}
	_ = w.Flush()
}

func (o *Output) printAuthResult(a AuthResult) {
	o.printUser(a.User)
	fmt.Printf("Token expires: %s\n", a.ExpiresAt.Local().Format(time.DateTime))
}

func (o *Output) printRanking(entries []RankingEntry) {
	if len(entries) == 0 {
		fmt.Println("No players yet")
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RANK\tUSERNAME\tCOUNTER")
	for _, e := range entries {
		fmt.Fprintf(w, "%d\t%s\t%d\n", e.Rank, e.Username, e.Counter)
	}
	_ = w.Flush()
}

func (o *Output) printClickResult(c ClickResult) {
	fmt.Printf("Clicked %d times, counter is now %d\n", c.Sent, c.Counter)
}

func (o *Output) printHealthResult(h HealthResult) {
	fmt.Printf("Status: %s\n", h.Status)
	fmt.Printf("Storage: %s\n", h.Storage)
}

func (o *Output) printStats(s Stats) {
	fmt.Printf("Connections: %d (%d bound)\n", s.Connections, s.BoundConnections)
	fmt.Printf("Active users: %d\n", s.ActiveUsers)
}
