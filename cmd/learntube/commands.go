package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/goccy/go-json"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/learntube/learntube/internal/config"
	"github.com/learntube/learntube/internal/oracle"
	"github.com/learntube/learntube/internal/preferences"
	"github.com/learntube/learntube/internal/roadmap"
)

func userPath(suffix string) string {
	return "/users/" + url.PathEscape(userID) + suffix
}

func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// --- roadmap ---

var roadmapCmd = &cobra.Command{
	Use:   "roadmap",
	Short: "Show and progress through your learning roadmap",
}

var roadmapShowCmd = &cobra.Command{
	Use:   "show",
	Short: "List roadmap steps",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		steps, err := fetchRoadmap(cmd.Context(), client)
		if err != nil {
			return err
		}
		if len(steps) == 0 {
			fmt.Println("No roadmap yet. Run `learntube prefs set --categories ...` first.")
			return nil
		}
		renderSteps(os.Stdout, steps)
		return nil
	},
}

var roadmapCompleteCmd = &cobra.Command{
	Use:   "complete [step-id]",
	Short: "Complete a step (the current one by default) and move to the next",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		stepID := ""
		if len(args) == 1 {
			stepID = args[0]
		} else {
			cur, err := fetchCurrentStep(cmd.Context(), client)
			if err != nil {
				return err
			}
			if cur == nil {
				printSuccess("Roadmap already complete")
				return nil
			}
			stepID = cur.ID
		}

		resp, err := client.post(cmd.Context(), userPath("/roadmap/steps/"+url.PathEscape(stepID)+"/complete"), nil)
		if err != nil {
			return err
		}
		var out struct {
			Next *roadmap.Step `json:"next"`
		}
		if err := decodeJSON(resp, &out); err != nil {
			return err
		}
		if out.Next == nil {
			printSuccess("Roadmap complete!")
			return nil
		}
		printSuccess("Step completed")
		printStep("Next: %d. %s", out.Next.StepNumber, out.Next.Title)
		return nil
	},
}

var roadmapVideosCmd = &cobra.Command{
	Use:   "videos [step-id]",
	Short: "Show saved courses for a step (the current one by default)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		refresh, _ := cmd.Flags().GetBool("refresh")
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		stepID := ""
		if len(args) == 1 {
			stepID = args[0]
		} else {
			cur, err := fetchCurrentStep(cmd.Context(), client)
			if err != nil {
				return err
			}
			if cur == nil {
				fmt.Println("No active step.")
				return nil
			}
			stepID = cur.ID
		}

		path := "/steps/" + url.PathEscape(stepID) + "/videos"
		if refresh {
			path += "?refresh=true"
		}
		resp, err := client.get(cmd.Context(), path)
		if err != nil {
			return err
		}
		var videos []roadmap.SavedVideo
		if err := decodeJSON(resp, &videos); err != nil {
			return err
		}
		if len(videos) == 0 {
			printWarning("No courses found for this step yet, try again later")
			return nil
		}
		renderVideos(os.Stdout, videos)
		return nil
	},
}

func init() {
	roadmapVideosCmd.Flags().Bool("refresh", false, "discard saved courses and resolve again")
	roadmapCmd.AddCommand(roadmapShowCmd, roadmapCompleteCmd, roadmapVideosCmd)
}

func fetchRoadmap(ctx context.Context, client *apiClient) ([]roadmap.Step, error) {
	resp, err := client.get(ctx, userPath("/roadmap"))
	if err != nil {
		return nil, err
	}
	var steps []roadmap.Step
	if err := decodeJSON(resp, &steps); err != nil {
		return nil, err
	}
	return steps, nil
}

func fetchCurrentStep(ctx context.Context, client *apiClient) (*roadmap.Step, error) {
	resp, err := client.get(ctx, userPath("/roadmap/current"))
	if err != nil {
		return nil, err
	}
	var out struct {
		Step *roadmap.Step `json:"step"`
	}
	if err := decodeJSON(resp, &out); err != nil {
		return nil, err
	}
	return out.Step, nil
}

func statusLabel(s roadmap.Status) string {
	switch s {
	case roadmap.StatusCompleted:
		return colorize(colorGreen, "completed")
	case roadmap.StatusInProgress:
		return colorize(colorCyan, "in progress")
	default:
		return "not started"
	}
}

func renderSteps(w io.Writer, steps []roadmap.Step) {
	t := newTable(w, "#", "Title", "Level", "Status", "ID")
	for _, s := range steps {
		t.AppendRow(table.Row{s.StepNumber, s.Title, s.Level, statusLabel(s.Status), s.ID})
	}
	t.Render()
}

func renderVideos(w io.Writer, videos []roadmap.SavedVideo) {
	t := newTable(w, "Title", "Channel", "Videos", "URL")
	for _, v := range videos {
		count := "-"
		if v.VideoCount > 0 {
			count = fmt.Sprint(v.VideoCount)
		}
		t.AppendRow(table.Row{v.Title, v.ChannelTitle, count, v.URL})
	}
	t.Render()
}

// --- prefs ---

var prefsCmd = &cobra.Command{
	Use:   "prefs",
	Short: "Show or update learning preferences",
}

var prefsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current preferences as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), userPath("/preferences"))
		if err != nil {
			return err
		}
		var p preferences.Preferences
		if err := decodeJSON(resp, &p); err != nil {
			return err
		}
		out, err := json.MarshalIndent(p, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

var prefsSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Set categories, keywords or learning context",
	Long: `Set categories, keywords or learning context.

The first call onboards the user and generates a roadmap. Changing the set of
categories later replaces the roadmap; keywords and context never do.

Examples:
  learntube prefs set --categories "Web Development,Design" --name Sam
  learntube prefs set --keywords "react,css grid" --context "building a portfolio"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cats, _ := cmd.Flags().GetString("categories")
		kws, _ := cmd.Flags().GetString("keywords")
		lc, _ := cmd.Flags().GetString("context")
		name, _ := cmd.Flags().GetString("name")

		if cats == "" && kws == "" && lc == "" {
			return fmt.Errorf("one of --categories, --keywords or --context is required")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		return setPreferences(cmd.Context(), client, name, splitCSV(cats), splitCSV(kws), kws != "", lc)
	},
}

func init() {
	prefsSetCmd.Flags().String("categories", "", "comma-separated categories")
	prefsSetCmd.Flags().String("keywords", "", "comma-separated keywords")
	prefsSetCmd.Flags().String("context", "", "free-text learning context")
	prefsSetCmd.Flags().String("name", "", "display name (onboarding only)")
	prefsCmd.AddCommand(prefsShowCmd, prefsSetCmd)
}

// setPreferences onboards a new user, or updates an existing one.
func setPreferences(ctx context.Context, client *apiClient, name string, cats, kws []string, kwsSet bool, lc string) error {
	resp, err := client.get(ctx, userPath("/preferences"))
	if err != nil {
		return err
	}
	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		if len(cats) == 0 {
			return fmt.Errorf("no preferences yet: --categories is required for onboarding")
		}
		body := map[string]any{"name": name, "categories": cats, "keywords": kws, "learningContext": lc}
		resp, err := client.post(ctx, userPath("/onboarding"), body)
		if err != nil {
			return err
		}
		var out struct {
			Steps []roadmap.Step `json:"steps"`
		}
		if err := decodeJSON(resp, &out); err != nil {
			return err
		}
		printSuccess("Onboarded with %d categories, roadmap has %d steps", len(cats), len(out.Steps))
		return nil
	}
	var existing preferences.Preferences
	if err := decodeJSON(resp, &existing); err != nil {
		return err
	}

	body := map[string]any{}
	if len(cats) > 0 {
		body["categories"] = cats
	}
	if kwsSet {
		body["keywords"] = kws
	}
	if lc != "" {
		body["learningContext"] = lc
	}
	resp, err = client.put(ctx, userPath("/preferences"), body)
	if err != nil {
		return err
	}
	var out struct {
		Reinitialized bool `json:"reinitialized"`
	}
	if err := decodeJSON(resp, &out); err != nil {
		return err
	}
	printSuccess("Preferences updated")
	if out.Reinitialized {
		printStep("Categories changed: roadmap regenerated")
	}
	return nil
}

// --- keywords ---

var keywordsCmd = &cobra.Command{
	Use:   "keywords",
	Short: "Suggest search keywords for your categories",
	RunE: func(cmd *cobra.Command, args []string) error {
		cats, _ := cmd.Flags().GetString("categories")
		lc, _ := cmd.Flags().GetString("context")
		save, _ := cmd.Flags().GetBool("save")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		categories := splitCSV(cats)
		if len(categories) == 0 {
			resp, err := client.get(cmd.Context(), userPath("/preferences"))
			if err != nil {
				return err
			}
			var p preferences.Preferences
			if err := decodeJSON(resp, &p); err != nil {
				return fmt.Errorf("--categories is required without saved preferences: %w", err)
			}
			categories = p.SelectedCategories
			if lc == "" {
				lc = p.LearningContext
			}
		}

		resp, err := client.post(cmd.Context(), "/keywords", map[string]any{"categories": categories, "learningContext": lc})
		if err != nil {
			return err
		}
		var out struct {
			Keywords []string `json:"keywords"`
		}
		if err := decodeJSON(resp, &out); err != nil {
			return err
		}
		for _, k := range out.Keywords {
			fmt.Println(k)
		}

		if save {
			resp, err := client.put(cmd.Context(), userPath("/preferences"), map[string]any{"keywords": out.Keywords})
			if err != nil {
				return err
			}
			var discard map[string]any
			if err := decodeJSON(resp, &discard); err != nil {
				return err
			}
			printSuccess("Saved %d keywords", len(out.Keywords))
		}
		return nil
	},
}

func init() {
	keywordsCmd.Flags().String("categories", "", "comma-separated categories (default: saved preferences)")
	keywordsCmd.Flags().String("context", "", "free-text learning context")
	keywordsCmd.Flags().Bool("save", false, "store the keywords in your preferences")
}

// --- chat ---

var chatCmd = &cobra.Command{
	Use:   "chat [message]",
	Short: "Ask the learning assistant; without a message, start an interactive session",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		user := chatUser(cmd.Context(), client)
		if len(args) > 0 {
			reply, err := sendChat(cmd.Context(), client, strings.Join(args, " "), user, nil)
			if err != nil {
				return err
			}
			fmt.Println(reply)
			return nil
		}
		return chatLoop(cmd.Context(), client, user, os.Stdin, os.Stdout)
	},
}

// chatUser builds the assistant's profile from saved preferences, or an
// empty one when there are none.
func chatUser(ctx context.Context, client *apiClient) oracle.UserContext {
	u := oracle.UserContext{Name: userID}
	resp, err := client.get(ctx, userPath("/preferences"))
	if err != nil {
		return u
	}
	var p preferences.Preferences
	if decodeJSON(resp, &p) == nil {
		u.Categories = p.SelectedCategories
		u.Keywords = p.Keywords
	}
	return u
}

func sendChat(ctx context.Context, client *apiClient, message string, user oracle.UserContext, history []oracle.Message) (string, error) {
	resp, err := client.post(ctx, "/chat", map[string]any{"message": message, "user": user, "history": history})
	if err != nil {
		return "", err
	}
	var out struct {
		Reply string `json:"reply"`
	}
	if err := decodeJSON(resp, &out); err != nil {
		return "", err
	}
	return out.Reply, nil
}

func chatLoop(ctx context.Context, client *apiClient, user oracle.UserContext, in io.Reader, out io.Writer) error {
	var history []oracle.Message
	scanner := bufio.NewScanner(in)
	fmt.Fprint(out, colorize(colorBold, "you> "))
	for scanner.Scan() {
		msg := strings.TrimSpace(scanner.Text())
		if msg == "exit" || msg == "quit" {
			return nil
		}
		if msg != "" {
			reply, err := sendChat(ctx, client, msg, user, history)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, colorize(colorCyan, "learntube> ")+reply)
			history = append(history,
				oracle.Message{Role: "user", Content: msg},
				oracle.Message{Role: "assistant", Content: reply},
			)
		}
		fmt.Fprint(out, colorize(colorBold, "you> "))
	}
	return scanner.Err()
}

// --- cache / quota ---

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the video provider response cache",
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Drop all cached provider responses",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/admin/cache/clear", nil)
		if err != nil {
			return err
		}
		var out struct {
			Cleared int `json:"cleared"`
		}
		if err := decodeJSON(resp, &out); err != nil {
			return err
		}
		printSuccess("Cleared %d cached responses", out.Cleared)
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cacheClearCmd)
}

var quotaCmd = &cobra.Command{
	Use:   "quota",
	Short: "Manage YouTube quota state",
}

var quotaResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear the quota-exceeded flag and key exhaustion",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/admin/quota/reset", nil)
		if err != nil {
			return err
		}
		var out map[string]string
		if err := decodeJSON(resp, &out); err != nil {
			return err
		}
		printSuccess("Quota state reset")
		return nil
	},
}

func init() {
	quotaCmd.AddCommand(quotaResetCmd)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		t := newTable(os.Stdout, "Key", "Value", "Env")
		for _, k := range config.ShowAll(cfg) {
			t.AppendRow(table.Row{k.Key, k.Value, k.EnvVar})
		}
		t.Render()
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
