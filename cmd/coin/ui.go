package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"coinbot/internal/economy"

	"github.com/charmbracelet/lipgloss"
	"github.com/fatih/color"
)

var (
	stdinReader = bufio.NewReader(os.Stdin)
	accent      = color.New(color.FgCyan, color.Bold)
	success     = color.New(color.FgGreen, color.Bold)
	warn        = color.New(color.FgYellow, color.Bold)
	danger      = color.New(color.FgRed, color.Bold)
	neutral     = color.New(color.FgHiWhite)

	cardStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#9B59B6")).
			Padding(0, 2)
	cardTitle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#9B59B6"))
	cardLabel = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Width(12)
)

type leaderboardPayload struct {
	Rows []economy.BalanceRow `json:"rows"`
}

type shopPayload struct {
	Items []economy.ShopItem `json:"items"`
}

type jobsPayload struct {
	Jobs            []economy.Job `json:"jobs"`
	CooldownSeconds int64         `json:"cooldown_seconds"`
}

type inventoryPayload struct {
	Inventory map[string]int64 `json:"inventory"`
}

type achievementsPayload struct {
	Achievements []string `json:"achievements"`
}

type cooldownView struct {
	Eligible         bool  `json:"eligible"`
	RemainingSeconds int64 `json:"remaining_seconds"`
}

type pendingPayload struct {
	Incoming []economy.PendingTrade `json:"incoming"`
	Outgoing *economy.PendingTrade  `json:"outgoing"`
}

func printSuccess(msg string) {
	success.Println(msg)
}

func printWarn(msg string) {
	warn.Println(msg)
}

func printError(msg string) {
	danger.Println(msg)
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

func promptOptional(label string) (string, error) {
	fmt.Printf("%s: ", label)
	text, err := stdinReader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func promptChoice(label string, options []string, defaultValue string) (string, error) {
	normalized := make(map[string]struct{}, len(options))
	for _, opt := range options {
		normalized[strings.ToLower(strings.TrimSpace(opt))] = struct{}{}
	}
	for {
		fmt.Printf("%s (%s) [%s]: ", label, strings.Join(options, "/"), defaultValue)
		text, err := stdinReader.ReadString('\n')
		if err != nil {
			return "", err
		}
		text = strings.ToLower(strings.TrimSpace(text))
		if text == "" {
			text = strings.ToLower(strings.TrimSpace(defaultValue))
		}
		if _, ok := normalized[text]; ok {
			return text, nil
		}
		printWarn("Invalid option. Please pick one of the listed values.")
	}
}

func promptFloat(label string, min float64) (float64, error) {
	for {
		text, err := promptRequired(label)
		if err != nil {
			return 0, err
		}
		v, err := strconv.ParseFloat(text, 64)
		if err != nil {
			printWarn("Enter a valid number.")
			continue
		}
		if v <= min {
			printWarn(fmt.Sprintf("Value must be > %.2f", min))
			continue
		}
		return v, nil
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

func renderBalance(raw map[string]any) error {
	out, err := decodeInto[struct {
		BalanceMicros int64 `json:"balance_micros"`
	}](raw)
	if err != nil {
		return err
	}
	fmt.Printf("Balance: %s coins\n", accent.Sprint(formatMicros(out.BalanceMicros)))
	return nil
}

func renderBalanceChange(raw map[string]any, message string) error {
	out, err := decodeInto[struct {
		BalanceMicros int64 `json:"balance_micros"`
	}](raw)
	if err != nil {
		return err
	}
	printSuccess(message)
	fmt.Printf("Balance: %s coins\n", formatMicros(out.BalanceMicros))
	return nil
}

func renderPortfolio(raw map[string]any) error {
	p, err := decodeInto[economy.Portfolio](raw)
	if err != nil {
		return err
	}
	fmt.Println(portfolioCard(p))
	return nil
}

func portfolioCard(p economy.Portfolio) string {
	var b strings.Builder
	b.WriteString(cardTitle.Render("Portfolio of "+p.UserID) + "\n\n")
	b.WriteString(cardLabel.Render("Balance") + formatMicros(p.BalanceMicros) + " coins\n")
	b.WriteString(cardLabel.Render("Invested") + formatMicros(p.PrincipalMicros) + " coins\n")

	items := "none"
	if len(p.Inventory) > 0 {
		items = strings.Join(inventoryLines(p.Inventory), ", ")
	}
	b.WriteString(cardLabel.Render("Items") + items + "\n")

	achievements := "none yet"
	if len(p.Achievements) > 0 {
		achievements = strings.Join(p.Achievements, ", ")
	}
	b.WriteString(cardLabel.Render("Unlocked") + achievements)
	return cardStyle.Render(b.String())
}

func inventoryLines(inv map[string]int64) []string {
	items := make([]string, 0, len(inv))
	for item := range inv {
		items = append(items, item)
	}
	sort.Strings(items)
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, fmt.Sprintf("%s x%d", item, inv[item]))
	}
	return out
}

func renderInventory(raw map[string]any) error {
	out, err := decodeInto[inventoryPayload](raw)
	if err != nil {
		return err
	}
	accent.Println("\n== INVENTORY ==")
	if len(out.Inventory) == 0 {
		printInfo("Your inventory is empty.")
		return nil
	}
	for _, line := range inventoryLines(out.Inventory) {
		fmt.Println(line)
	}
	fmt.Println()
	return nil
}

func renderAchievements(raw map[string]any) error {
	out, err := decodeInto[achievementsPayload](raw)
	if err != nil {
		return err
	}
	if len(out.Achievements) == 0 {
		printInfo("No achievements yet.")
		return nil
	}
	for _, a := range out.Achievements {
		success.Println("* " + a)
	}
	return nil
}

func renderCooldowns(raw map[string]any) error {
	out, err := decodeInto[map[string]cooldownView](raw)
	if err != nil {
		return err
	}
	kinds := make([]string, 0, len(out))
	for kind := range out {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	for _, kind := range kinds {
		v := out[kind]
		if v.Eligible {
			fmt.Printf("%-8s %s\n", kind, success.Sprint("ready"))
			continue
		}
		wait := time.Duration(v.RemainingSeconds) * time.Second
		fmt.Printf("%-8s %s\n", kind, warn.Sprint("in "+wait.String()))
	}
	return nil
}

func renderShop(raw map[string]any) error {
	out, err := decodeInto[shopPayload](raw)
	if err != nil {
		return err
	}
	accent.Println("\n== SHOP ==")
	fmt.Printf("%-16s %12s\n", "ITEM", "PRICE")
	for _, item := range out.Items {
		fmt.Printf("%-16s %12s\n", item.Name, formatMicros(item.PriceMicros))
	}
	fmt.Println()
	return nil
}

func renderJobs(raw map[string]any) error {
	out, err := decodeInto[jobsPayload](raw)
	if err != nil {
		return err
	}
	accent.Printf("\n== JOBS (one shift every %s) ==\n", time.Duration(out.CooldownSeconds)*time.Second)
	fmt.Printf("%-18s %12s\n", "JOB", "PAYOUT")
	var total int64
	for _, job := range out.Jobs {
		total += job.PayoutMicros
		fmt.Printf("%-18s %12s\n", job.Name, formatMicros(job.PayoutMicros))
	}
	fmt.Printf("%-18s %12s\n", "collect (all)", formatMicros(total))
	fmt.Println()
	return nil
}

func renderLeaderboard(raw map[string]any) error {
	out, err := decodeInto[leaderboardPayload](raw)
	if err != nil {
		return err
	}
	accent.Println("\n== LEADERBOARD ==")
	if len(out.Rows) == 0 {
		printInfo("No leaderboard rows yet.")
		return nil
	}
	fmt.Printf("%-6s %-24s %14s\n", "RANK", "USER", "BALANCE")
	for _, row := range out.Rows {
		fmt.Printf("%-6d %-24s %14s\n", row.Rank, truncate(row.UserID, 24), formatMicros(row.BalanceMicros))
	}
	fmt.Println()
	return nil
}

func renderPurchase(raw map[string]any) error {
	out, err := decodeInto[economy.PurchaseResult](raw)
	if err != nil {
		return err
	}
	printSuccess(fmt.Sprintf("Bought %d %s for %s coins.", out.Quantity, out.Item, formatMicros(out.CostMicros)))
	fmt.Printf("Balance: %s coins\n", formatMicros(out.BalanceMicros))
	return nil
}

func renderPayout(raw map[string]any) error {
	out, err := decodeInto[economy.Payout](raw)
	if err != nil {
		return err
	}
	printSuccess(fmt.Sprintf("%s paid %s coins.", out.Source, formatMicros(out.AmountMicros)))
	fmt.Printf("Balance: %s coins\n", formatMicros(out.BalanceMicros))
	return nil
}

func renderInvest(raw map[string]any) error {
	out, err := decodeInto[economy.InvestResult](raw)
	if err != nil {
		return err
	}
	printSuccess(fmt.Sprintf("Invested %s coins.", formatMicros(out.AmountMicros)))
	fmt.Printf("Principal: %s coins\n", formatMicros(out.PrincipalMicros))
	fmt.Printf("Balance:   %s coins\n", formatMicros(out.BalanceMicros))
	return nil
}

func renderGame(raw map[string]any) error {
	out, err := decodeInto[economy.GameResult](raw)
	if err != nil {
		return err
	}
	fmt.Printf("%s: %s\n", out.Game, accent.Sprint(out.Face))
	if out.PayoutMicros > 0 {
		printSuccess(fmt.Sprintf("You earned %s coins.", formatMicros(out.PayoutMicros)))
	} else {
		printWarn("No payout this time.")
	}
	fmt.Printf("Balance: %s coins\n", formatMicros(out.BalanceMicros))
	return nil
}

func renderTrade(raw map[string]any, title string) error {
	t, err := decodeInto[economy.PendingTrade](raw)
	if err != nil {
		return err
	}
	printSuccess(fmt.Sprintf("%s: %s gives %d %s to %s.", title, t.Initiator, t.Quantity, t.Item, t.Target))
	return nil
}

func renderPendingTrades(raw map[string]any) error {
	out, err := decodeInto[pendingPayload](raw)
	if err != nil {
		return err
	}
	accent.Println("\n== TRADES ==")
	if out.Outgoing != nil {
		fmt.Printf("Your offer: %d %s to %s\n", out.Outgoing.Quantity, out.Outgoing.Item, out.Outgoing.Target)
	}
	if len(out.Incoming) == 0 {
		printInfo("No offers waiting for you.")
		return nil
	}
	fmt.Printf("%-24s %-12s %8s %20s\n", "FROM", "ITEM", "QTY", "OFFERED")
	for _, t := range out.Incoming {
		fmt.Printf("%-24s %-12s %8d %20s\n", truncate(t.Initiator, 24), t.Item, t.Quantity, t.CreatedAt.Local().Format(time.DateTime))
	}
	fmt.Println()
	return nil
}

func decodeInto[T any](in any) (T, error) {
	var out T
	raw, err := json.Marshal(in)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, err
	}
	return out, nil
}

func formatMicros(v int64) string {
	return economy.FormatMicros(v)
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
