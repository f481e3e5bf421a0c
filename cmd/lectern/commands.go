package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/avoskov/lectern/internal/config"
)

// --- ask ---

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a question about the indexed course materials",
	Long: `Ask a question about the indexed course materials.

Examples:
  lectern ask "What does lesson 2 of the MCP course cover?"
  lectern ask --session 6f1c... "And the lesson after that?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		question := strings.Join(args, " ")
		sessionID, _ := cmd.Flags().GetString("session")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/api/query", map[string]string{
			"query":      question,
			"session_id": sessionID,
		})
		if err != nil {
			return err
		}

		var result struct {
			Answer  string `json:"answer"`
			Sources []struct {
				Text string `json:"text"`
				Link string `json:"link"`
			} `json:"sources"`
			SessionID string `json:"session_id"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		fmt.Println(result.Answer)

		if len(result.Sources) > 0 {
			fmt.Println()
			fmt.Println(colorize(colorBold, "Sources:"))
			for _, s := range result.Sources {
				if s.Link != "" {
					fmt.Printf("  %s — %s\n", s.Text, s.Link)
				} else {
					fmt.Printf("  %s\n", s.Text)
				}
			}
		}

		printStatus("Session", "%s", result.SessionID)
		return nil
	},
}

func init() {
	askCmd.Flags().String("session", "", "session id for follow-up questions")
}

// --- courses ---

var coursesCmd = &cobra.Command{
	Use:   "courses",
	Short: "List indexed courses",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/api/courses")
		if err != nil {
			return err
		}

		var result struct {
			TotalCourses int      `json:"total_courses"`
			CourseTitles []string `json:"course_titles"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		if result.TotalCourses == 0 {
			fmt.Println("No courses indexed yet.")
			return nil
		}

		fmt.Printf("%s %d\n", colorize(colorBold, "Courses:"), result.TotalCourses)
		for _, title := range result.CourseTitles {
			fmt.Printf("  %s\n", title)
		}
		return nil
	},
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

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
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

// --- version ---

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the lectern version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("lectern %s\n", version)
	},
}
