package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/huddlehq/huddle/internal/client"
	"github.com/huddlehq/huddle/internal/config"
	"github.com/huddlehq/huddle/internal/workspace"
)

func main() {
	addrFlag := flag.String("addr", "", "daemon address (overrides config)")
	userFlag := flag.String("user", "", "act as this user id")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	addr := *addrFlag
	if addr == "" {
		addr = config.DefaultListen
		if cfg, err := config.Load(workspace.ConfigPath()); err == nil && cfg.Listen != "" {
			addr = cfg.Listen
		}
	}

	c := client.New(addr, *userFlag)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch args[0] {
	case "status":
		cmdStatus(ctx, c, *jsonFlag)
	case "me":
		cmdMe(ctx, c, *jsonFlag)
	case "directory":
		role := ""
		if len(args) >= 2 {
			role = args[1]
		}
		cmdDirectory(ctx, c, role, *jsonFlag)
	case "conversations":
		cmdConversations(ctx, c, *jsonFlag)
	case "start":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: huddlectl start <target-user-id>")
			os.Exit(1)
		}
		cmdStart(ctx, c, args[1], *jsonFlag)
	case "group":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: huddlectl group <create|rename|remove-member|delete> ...")
			os.Exit(1)
		}
		cmdGroup(ctx, c, args[1:], *jsonFlag)
	case "send":
		if len(args) < 3 {
			fmt.Fprintln(os.Stderr, "usage: huddlectl send <conversation-id> <text>")
			os.Exit(1)
		}
		cmdSend(ctx, c, args[1], strings.Join(args[2:], " "), *jsonFlag)
	case "messages":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: huddlectl messages <conversation-id>")
			os.Exit(1)
		}
		cmdMessages(ctx, c, args[1], *jsonFlag)
	case "read":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: huddlectl read <conversation-id>")
			os.Exit(1)
		}
		cmdRead(ctx, c, args[1])
	case "unread":
		cmdUnread(ctx, c, *jsonFlag)
	case "org":
		if len(args) >= 3 && args[1] == "create" {
			cmdOrgCreate(ctx, c, strings.Join(args[2:], " "))
		} else {
			fmt.Fprintln(os.Stderr, "usage: huddlectl org create <name>")
			os.Exit(1)
		}
	case "roster":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: huddlectl roster <add|remove> ...")
			os.Exit(1)
		}
		cmdRoster(ctx, c, args[1:])
	case "watch":
		prefix := ""
		if len(args) >= 2 {
			prefix = args[1]
		}
		cmdWatch(c, prefix)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: huddlectl [--addr <host:port>] [--user <id>] [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  status                              Show daemon status")
	fmt.Fprintln(os.Stderr, "  me                                  Show resolved identity")
	fmt.Fprintln(os.Stderr, "  directory [student|trainer]         List the organization directory")
	fmt.Fprintln(os.Stderr, "  conversations                       List conversations")
	fmt.Fprintln(os.Stderr, "  start <user-id>                     Start or fetch a 1:1 conversation")
	fmt.Fprintln(os.Stderr, "  group create <name> <id>...        Create a group")
	fmt.Fprintln(os.Stderr, "  group rename <conv-id> <name>       Rename a group (admin only)")
	fmt.Fprintln(os.Stderr, "  group remove-member <conv-id> <id>  Remove a group member (admin only)")
	fmt.Fprintln(os.Stderr, "  group delete <conv-id>              Delete a group (admin only)")
	fmt.Fprintln(os.Stderr, "  send <conv-id> <text>               Send a message")
	fmt.Fprintln(os.Stderr, "  messages <conv-id>                  Show a conversation feed")
	fmt.Fprintln(os.Stderr, "  read <conv-id>                      Mark a conversation read")
	fmt.Fprintln(os.Stderr, "  unread                              Show unread counts")
	fmt.Fprintln(os.Stderr, "  org create <name>                   Create an organization owned by --user")
	fmt.Fprintln(os.Stderr, "  roster add <id> <role> <first> [last]  Add a roster member (owner only)")
	fmt.Fprintln(os.Stderr, "  roster remove <id>                  Remove a roster member (owner only)")
	fmt.Fprintln(os.Stderr, "  watch [prefix]                      Stream daemon events")
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func cmdStatus(ctx context.Context, c *client.Client, jsonOut bool) {
	state, err := c.Status(ctx)
	if err != nil {
		fatal(err)
	}
	if jsonOut {
		outputJSON(map[string]string{"state": state})
		return
	}
	fmt.Printf("State: %s\n", state)
}

func cmdMe(ctx context.Context, c *client.Client, jsonOut bool) {
	id, err := c.Me(ctx)
	if err != nil {
		fatal(err)
	}
	if jsonOut {
		outputJSON(id)
		return
	}
	fmt.Printf("User:         %s\n", id.UserID)
	fmt.Printf("Organization: %s\n", id.OrgID)
	fmt.Printf("Role:         %s\n", id.Role)
}

func cmdDirectory(ctx context.Context, c *client.Client, role string, jsonOut bool) {
	entries, err := c.Directory(ctx, role)
	if err != nil {
		fatal(err)
	}
	if jsonOut {
		outputJSON(entries)
		return
	}
	for _, e := range entries {
		fmt.Printf("%-24s %-8s %s\n", e.UserID, e.Role, e.DisplayName)
	}
}

func cmdConversations(ctx context.Context, c *client.Client, jsonOut bool) {
	convs, err := c.Conversations(ctx)
	if err != nil {
		fatal(err)
	}
	if jsonOut {
		outputJSON(convs)
		return
	}
	for _, cv := range convs {
		name := cv.Name
		if name == "" {
			name = cv.ID
		}
		marker := ""
		if cv.UnreadCount > 0 {
			marker = fmt.Sprintf(" (%d unread)", cv.UnreadCount)
		}
		fmt.Printf("%-40s %-6s %s%s\n", cv.ID, cv.Kind, name, marker)
	}
}

func cmdStart(ctx context.Context, c *client.Client, targetID string, jsonOut bool) {
	conv, err := c.StartDirect(ctx, targetID)
	if err != nil {
		fatal(err)
	}
	if jsonOut {
		outputJSON(conv)
		return
	}
	fmt.Printf("Conversation: %s\n", conv.ID)
}

func cmdGroup(ctx context.Context, c *client.Client, args []string, jsonOut bool) {
	switch args[0] {
	case "create":
		if len(args) < 3 {
			fmt.Fprintln(os.Stderr, "usage: huddlectl group create <name> <member-id>...")
			os.Exit(1)
		}
		conv, err := c.CreateGroup(ctx, args[1], args[2:])
		if err != nil {
			fatal(err)
		}
		if jsonOut {
			outputJSON(conv)
			return
		}
		fmt.Printf("Group created: %s\n", conv.ID)
	case "rename":
		if len(args) < 3 {
			fmt.Fprintln(os.Stderr, "usage: huddlectl group rename <conv-id> <name>")
			os.Exit(1)
		}
		if err := c.RenameGroup(ctx, args[1], strings.Join(args[2:], " ")); err != nil {
			fatal(err)
		}
		fmt.Println("Renamed.")
	case "remove-member":
		if len(args) < 3 {
			fmt.Fprintln(os.Stderr, "usage: huddlectl group remove-member <conv-id> <member-id>")
			os.Exit(1)
		}
		if err := c.RemoveMember(ctx, args[1], args[2]); err != nil {
			fatal(err)
		}
		fmt.Println("Removed.")
	case "delete":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: huddlectl group delete <conv-id>")
			os.Exit(1)
		}
		if err := c.DeleteGroup(ctx, args[1]); err != nil {
			fatal(err)
		}
		fmt.Println("Deleted.")
	default:
		fmt.Fprintf(os.Stderr, "unknown group command: %s\n", args[0])
		os.Exit(1)
	}
}

func cmdSend(ctx context.Context, c *client.Client, conversationID, text string, jsonOut bool) {
	msg, err := c.Send(ctx, conversationID, text)
	if err != nil {
		fatal(err)
	}
	if jsonOut {
		outputJSON(msg)
		return
	}
	fmt.Printf("Sent %s\n", msg.ID)
}

func cmdMessages(ctx context.Context, c *client.Client, conversationID string, jsonOut bool) {
	msgs, err := c.Messages(ctx, conversationID, 0)
	if err != nil {
		fatal(err)
	}
	if jsonOut {
		outputJSON(msgs)
		return
	}
	for _, m := range msgs {
		ts := time.UnixMilli(m.CreatedAt).Format("15:04")
		check := ""
		if m.Mine && m.ReadByOther {
			check = " ✓✓"
		}
		fmt.Printf("[%s] %s: %s%s\n", ts, m.SenderID, m.Text, check)
	}
}

func cmdRead(ctx context.Context, c *client.Client, conversationID string) {
	marked, err := c.MarkRead(ctx, conversationID)
	if err != nil {
		fatal(err)
	}
	fmt.Printf("Marked %d messages read.\n", marked)
}

func cmdUnread(ctx context.Context, c *client.Client, jsonOut bool) {
	counts, err := c.Unread(ctx)
	if err != nil {
		fatal(err)
	}
	if jsonOut {
		outputJSON(counts)
		return
	}
	for id, n := range counts {
		if n > 0 {
			fmt.Printf("%-40s %d\n", id, n)
		}
	}
}

func cmdOrgCreate(ctx context.Context, c *client.Client, name string) {
	if err := c.CreateOrganization(ctx, name); err != nil {
		fatal(err)
	}
	fmt.Println("Organization created.")
}

func cmdRoster(ctx context.Context, c *client.Client, args []string) {
	switch args[0] {
	case "add":
		if len(args) < 4 {
			fmt.Fprintln(os.Stderr, "usage: huddlectl roster add <user-id> <student|trainer> <first-name> [last-name]")
			os.Exit(1)
		}
		m := client.RosterMember{UserID: args[1], Role: args[2], FirstName: args[3]}
		if len(args) >= 5 {
			m.LastName = args[4]
		}
		if err := c.UpsertRosterMember(ctx, m); err != nil {
			fatal(err)
		}
		fmt.Println("Roster member added.")
	case "remove":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: huddlectl roster remove <user-id>")
			os.Exit(1)
		}
		if err := c.RemoveRosterMember(ctx, args[1]); err != nil {
			fatal(err)
		}
		fmt.Println("Roster member removed.")
	default:
		fmt.Fprintf(os.Stderr, "unknown roster command: %s\n", args[0])
		os.Exit(1)
	}
}

func cmdWatch(c *client.Client, prefix string) {
	// Watch runs until interrupted; no request timeout here.
	err := c.Watch(context.Background(), prefix, func(evt client.Event) {
		ts := time.UnixMilli(evt.OccurredAt).Format("15:04:05")
		fmt.Printf("[%s] %-24s %s\n", ts, evt.Kind, string(evt.Payload))
	})
	if err != nil {
		fatal(err)
	}
}
