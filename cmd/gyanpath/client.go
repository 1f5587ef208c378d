package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/gyanpath/gyanpath-agent/pkg/config"
	"github.com/gyanpath/gyanpath-agent/pkg/gateway"
	"github.com/gyanpath/gyanpath-agent/pkg/storage"
)

// apiCall hits the running agent's control API.
func apiCall(method, path string, body io.Reader, out interface{}) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	httpClient := &http.Client{Timeout: 30 * time.Second}
	req, err := http.NewRequest(method, "http://"+cfg.APIAddr+path, body)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("is the agent running? %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s", apiErr.Error)
		}
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if out != nil {
		return json.Unmarshal(data, out)
	}
	return nil
}

var downloadCmd = &cobra.Command{
	Use:   "download COURSE_ID",
	Short: "Download a course for offline use",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		courseID := args[0]
		if err := apiCall(http.MethodPost, "/v1/courses/"+courseID+"/download", nil, nil); err != nil {
			return err
		}
		fmt.Printf("✓ Download of course %s started\n", courseID)
		fmt.Println("Watch progress with: gyanpath status")
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List downloaded courses",
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp struct {
			Courses []struct {
				ID           string `json:"id"`
				Title        string `json:"title"`
				LessonsTotal int    `json:"lessons_total"`
				AssetsFailed int    `json:"assets_failed"`
				Complete     bool   `json:"complete"`
			} `json:"courses"`
		}
		if err := apiCall(http.MethodGet, "/v1/courses", nil, &resp); err != nil {
			return err
		}

		if len(resp.Courses) == 0 {
			fmt.Println("No courses downloaded.")
			return nil
		}
		for _, c := range resp.Courses {
			state := "complete"
			if !c.Complete {
				state = fmt.Sprintf("%d assets missing", c.AssetsFailed)
			}
			fmt.Printf("%s  %s  (%d lessons, %s)\n", c.ID, c.Title, c.LessonsTotal, state)
		}
		return nil
	},
}

var removeCmd = &cobra.Command{
	Use:   "remove COURSE_ID",
	Short: "Remove a downloaded course and its files",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := apiCall(http.MethodDelete, "/v1/courses/"+args[0], nil, nil); err != nil {
			return err
		}
		fmt.Printf("✓ Removed course %s\n", args[0])
		return nil
	},
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Drain the outbox now instead of waiting for the next tick",
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp struct {
			Drained int `json:"drained"`
			Failed  int `json:"failed"`
		}
		if err := apiCall(http.MethodPost, "/v1/sync", strings.NewReader("{}"), &resp); err != nil {
			return err
		}
		fmt.Printf("✓ Synced: %d pushed, %d still pending\n", resp.Drained, resp.Failed)
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show agent status",
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp struct {
			Online      bool `json:"online"`
			OutboxDepth int  `json:"outbox_depth"`
			Downloads   []struct {
				CourseID string `json:"course_id"`
				State    string `json:"state"`
				Percent  int    `json:"percent"`
			} `json:"downloads"`
		}
		if err := apiCall(http.MethodGet, "/v1/status", nil, &resp); err != nil {
			return err
		}

		if resp.Online {
			fmt.Println("Backend:  online")
		} else {
			fmt.Println("Backend:  offline")
		}
		fmt.Printf("Outbox:   %d pending writes\n", resp.OutboxDepth)
		if len(resp.Downloads) == 0 {
			fmt.Println("Downloads: none active")
			return nil
		}
		for _, d := range resp.Downloads {
			fmt.Printf("Download: %s %s %d%%\n", d.CourseID, d.State, d.Percent)
		}
		return nil
	},
}

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the gateway cache",
}

var cachePruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove cache generations other than the current one",
	Long: `Remove every on-disk cache generation other than the current one.
The agent prunes automatically at startup; this command covers reclaiming
disk space while the agent is stopped. It opens the data directory directly
and fails if the agent is running.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		generation := cfg.CacheGeneration
		if cfg.PrecacheManifest != "" {
			if m, err := gateway.LoadManifest(cfg.PrecacheManifest); err == nil && m.Generation != "" {
				generation = m.Generation
			}
		}

		store, err := storage.NewBoltStore(cfg.DataDir)
		if err != nil {
			return fmt.Errorf("failed to open store (agent running?): %w", err)
		}
		defer store.Close()

		cache, err := gateway.NewCache(store, cfg.DataDir, generation, cfg.RuntimeQuotaBytes)
		if err != nil {
			return err
		}
		pruned, err := cache.Prune()
		if err != nil {
			return err
		}

		fmt.Printf("✓ Pruned %d stale cache entries (kept generation %s)\n", pruned, generation)
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cachePruneCmd)
}
