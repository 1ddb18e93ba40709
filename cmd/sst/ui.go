package main

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"streamerstock/internal/game"
	"streamerstock/internal/session"

	"github.com/fatih/color"
)

var (
	stdinReader = bufio.NewReader(os.Stdin)
	accent      = color.New(color.FgMagenta, color.Bold)
	success     = color.New(color.FgGreen, color.Bold)
	warn        = color.New(color.FgYellow, color.Bold)
	danger      = color.New(color.FgRed, color.Bold)
	neutral     = color.New(color.FgHiWhite)
)

func printSuccess(msg string) {
	success.Println(msg)
}

func printWarn(msg string) {
	warn.Println(msg)
}

func printInfo(msg string) {
	neutral.Println(msg)
}

func promptRequired(label string) (string, error) {
	for {
		fmt.Printf("%s: ", label)
		text, err := stdinReader.ReadString('\n')
		if err != nil {
			return "", err
		}
		text = strings.TrimSpace(text)
		if text != "" {
			return text, nil
		}
		printWarn(label + " is required.")
	}
}

func promptInt64(label string, min int64) (int64, error) {
	for {
		text, err := promptRequired(label)
		if err != nil {
			return 0, err
		}
		v, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			printWarn("Enter a whole number.")
			continue
		}
		if v < min {
			printWarn(fmt.Sprintf("Value must be >= %d", min))
			continue
		}
		return v, nil
	}
}

func renderMessage(st session.State) {
	if st.Message != "" {
		printSuccess(st.Message)
	}
}

func renderDashboard(st session.State) error {
	if !st.Authenticated {
		accent.Println("\n== STREAMERSTOCK TYCOON ==")
		printInfo("Not signed in. Run `sst login` to start playing.")
		return nil
	}
	if err := renderStats(st); err != nil {
		return err
	}
	return renderMarket(st)
}

func renderStats(st session.State) error {
	name := "guest"
	if st.Identity != nil {
		name = st.Identity.Username()
	}
	p := st.Player
	accent.Printf("\n== %s ==\n", strings.ToUpper(truncate(name, 24)))
	fmt.Printf("Cash:    %s\n", success.Sprint(money(p.Cash)))
	fmt.Printf("Points:  %s\n", comma(p.Points))
	fmt.Printf("Health:  %s\n", colorizeHealth(p.Health))
	fmt.Printf("Load:    %d/%d\n", st.TotalWeight, p.Capacity)
	fmt.Printf("Day:     %d\n", p.Day)
	fmt.Printf("Debt:    %s\n", danger.Sprint(money(p.Debt)))
	fmt.Printf("Holding: %s\n", money(st.TotalValue))
	if st.Degraded {
		printWarn("Progress storage is offline; this session will not be saved.")
	}
	return nil
}

func renderMarket(st session.State) error {
	loc := st.Location
	accent.Printf("\n== %s ==\n", strings.ToUpper(loc.Name))
	if loc.Description != "" {
		printInfo(loc.Description)
	}
	fmt.Printf("%-14s %-18s %-9s %10s %10s %7s\n", "ID", "NAME", "TYPE", "PRICE", "BASE", "OWNED")
	for _, c := range loc.Commodities {
		fmt.Printf("%-14s %-18s %-9s %10s %10s %7d\n",
			truncate(c.ID, 14),
			truncate(c.Name, 18),
			c.Category,
			colorizePrice(c.CurrentPrice, c.BasePrice),
			money(c.BasePrice),
			c.Owned,
		)
	}
	fmt.Println()
	return nil
}

func renderLocations(st session.State) error {
	accent.Println("\n== PLATFORMS ==")
	for _, loc := range st.Locations {
		marker := "  "
		if loc.ID == st.Player.LocationID {
			marker = success.Sprint("* ")
		}
		names := make([]string, 0, len(loc.Commodities))
		for _, c := range loc.Commodities {
			names = append(names, c.ID)
		}
		fmt.Printf("%s%-16s %-16s %s\n", marker, loc.ID, truncate(loc.Name, 16), strings.Join(names, ", "))
	}
	fmt.Println()
	return nil
}

func renderUpgrades(st session.State) error {
	accent.Println("\n== UPGRADES ==")
	fmt.Printf("%-14s %-18s %8s  %s\n", "ID", "NAME", "COST", "EFFECT")
	for _, u := range st.Upgrades {
		status := u.Description
		if u.Purchased {
			status = success.Sprint("owned")
		}
		fmt.Printf("%-14s %-18s %8s  %s\n", u.ID, truncate(u.Name, 18), comma(u.Cost)+"pt", status)
	}
	fmt.Printf("\nChannel points: %s\n\n", comma(st.Player.Points))
	return nil
}

func renderEvents(events []game.GameEvent) error {
	accent.Println("\n== RECENT EVENTS ==")
	if len(events) == 0 {
		printInfo("No events yet.")
		return nil
	}
	for _, ev := range events {
		fmt.Printf("%s  %-12s %s\n", ev.Timestamp.Local().Format("01-02 15:04:05"), ev.Kind, describeEvent(ev))
	}
	fmt.Println()
	return nil
}

func describeEvent(ev game.GameEvent) string {
	p := ev.Payload
	switch ev.Kind {
	case game.KindTrade:
		return fmt.Sprintf("%v %vx %v @ %v", p["action"], p["quantity"], p["commodity"], p["price"])
	case game.KindTravel:
		return fmt.Sprintf("%v -> %v (day %v)", p["from"], p["to"], p["day"])
	case game.KindUpgrade:
		return fmt.Sprintf("%v for %vpt", p["upgrade"], p["cost"])
	case game.KindMarketEvent:
		return fmt.Sprint(p["message"])
	case game.KindAuth:
		return fmt.Sprintf("signed in as %v", p["username"])
	}
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return strings.Join(keys, ",")
}

func renderLeaderboard(rows []game.LeaderboardRow) error {
	accent.Println("\n== LEADERBOARD ==")
	if len(rows) == 0 {
		printInfo("No finished sessions yet.")
		return nil
	}
	fmt.Printf("%-6s %-20s %14s  %s\n", "RANK", "PLAYER", "SCORE", "DATE")
	for _, row := range rows {
		fmt.Printf("%-6d %-20s %14s  %s\n",
			row.Rank,
			truncate(row.Username, 20),
			money(row.Score),
			row.Date.Local().Format("2006-01-02"),
		)
	}
	fmt.Println()
	return nil
}

func colorizePrice(price, base int64) string {
	text := money(price)
	switch {
	case price > base:
		return success.Sprint(text)
	case price < base:
		return danger.Sprint(text)
	default:
		return neutral.Sprint(text)
	}
}

func colorizeHealth(v int64) string {
	text := strconv.FormatInt(v, 10) + "/100"
	switch {
	case v <= 25:
		return danger.Sprint(text)
	case v <= 50:
		return warn.Sprint(text)
	default:
		return success.Sprint(text)
	}
}

func money(v int64) string {
	if v < 0 {
		return "-$" + comma(-v)
	}
	return "$" + comma(v)
}

func comma(v int64) string {
	s := strconv.FormatInt(v, 10)
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	pre := len(s) % 3
	if pre > 0 {
		b.WriteString(s[:pre])
		if len(s) > pre {
			b.WriteByte(',')
		}
	}
	for i := pre; i < len(s); i += 3 {
		b.WriteString(s[i : i+3])
		if i+3 < len(s) {
			b.WriteByte(',')
		}
	}
	return b.String()
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
