package main

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/kalambet/deepskin/internal/analysis"
	"github.com/kalambet/deepskin/internal/api"
	"github.com/kalambet/deepskin/internal/config"
	"github.com/kalambet/deepskin/internal/filestore"
)

// --- device queries ---

type healthResult struct {
	Success bool `json:"success"`
	analysis.HealthSnapshot
}

type offlineResult struct {
	Success bool `json:"success"`
	analysis.OfflineReport
}

type envResult struct {
	Success bool `json:"success"`
	analysis.EnvHistory
}

func queryDevice(ctx context.Context, c *apiClient, action api.Action, deviceID string, v any) error {
	resp, err := c.post(ctx, "/", api.DeviceQuery{Kind: action, DeviceID: deviceID})
	if err != nil {
		return err
	}
	return decodeJSON(resp, v)
}

var healthCmd = &cobra.Command{
	Use:   "health <device-id>",
	Short: "Show the latest readings of a device",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		var res healthResult
		if err := queryDevice(cmd.Context(), client, api.ActionDeviceHealth, args[0], &res); err != nil {
			return err
		}
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return printJSON(cmd.OutOrStdout(), res)
		}
		printHealth(cmd.OutOrStdout(), res.HealthSnapshot)
		return nil
	},
}

func printHealth(w io.Writer, s analysis.HealthSnapshot) {
	fmt.Fprintf(w, "%s %s\n", colorize(colorBold, "File:"), s.FileName)
	fmt.Fprintf(w, "%s %s (%s)\n", colorize(colorBold, "Last updated:"), s.LastUpdated, s.TimeSource)
	fmt.Fprintf(w, "%s %s\n", colorize(colorBold, "Temperature:"), reading(s.Temperature))
	fmt.Fprintf(w, "%s %s\n", colorize(colorBold, "Humidity:"), reading(s.Humidity))
	fmt.Fprintf(w, "%s %s\n", colorize(colorBold, "Battery:"), reading(s.Battery))
	for i, label := range s.Channels.Labels {
		v := s.Channels.Values[i]
		if v.IsNaN() {
			fmt.Fprintf(w, "  %s: -\n", label)
			continue
		}
		fmt.Fprintf(w, "  %s: %g\n", label, float64(v))
	}
}

var offlineCmd = &cobra.Command{
	Use:   "offline <device-id>",
	Short: "List recent periods when a device stopped reporting",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		var res offlineResult
		if err := queryDevice(cmd.Context(), client, api.ActionOfflineData, args[0], &res); err != nil {
			return err
		}
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return printJSON(cmd.OutOrStdout(), res)
		}
		printOffline(cmd.OutOrStdout(), res.OfflineReport)
		return nil
	},
}

func printOffline(w io.Writer, r analysis.OfflineReport) {
	fmt.Fprintf(w, "%d data points\n", r.DataPoints)
	if len(r.Intervals) == 0 {
		fmt.Fprintln(w, "No offline periods.")
		return
	}
	for _, iv := range r.Intervals {
		line := fmt.Sprintf("%s → %s  %d min", iv.Start.Format("2006-01-02 15:04:05"), iv.End.Format("2006-01-02 15:04:05"), iv.DurationMinutes)
		if iv.IsOngoing {
			line += " " + colorize(colorYellow, "(ongoing)")
		}
		fmt.Fprintln(w, line)
	}
}

var envCmd = &cobra.Command{
	Use:   "env <device-id>",
	Short: "Print recent environmental readings of a device as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		var res envResult
		if err := queryDevice(cmd.Context(), client, api.ActionEnvHistory, args[0], &res); err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), res.EnvHistory)
	},
}

func init() {
	healthCmd.Flags().Bool("json", false, "print the raw JSON response")
	offlineCmd.Flags().Bool("json", false, "print the raw JSON response")
}

// --- annotate ---

var annotateCmd = &cobra.Command{
	Use:   "annotate",
	Short: "Record a context annotation for a device",
	Long: `Record a context annotation for a device.

Examples:
  deepskin annotate --user "Ann Lee" --device DEV1 --event E42 --context "climbing stairs"
  deepskin annotate --user ann --device DEV1 --event E43 --time "2024-01-01 10:00"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		sub := api.AnnotationSubmission{}
		sub.UserName, _ = cmd.Flags().GetString("user")
		sub.DeviceID, _ = cmd.Flags().GetString("device")
		sub.EventID, _ = cmd.Flags().GetString("event")
		sub.Context, _ = cmd.Flags().GetString("context")
		sub.Timestamp, _ = cmd.Flags().GetString("time")

		if err := sub.Validate(); err != nil {
			return err
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		fileName, err := submitAnnotation(cmd.Context(), client, sub)
		if err != nil {
			return err
		}
		printSuccess("Saved to %s", fileName)
		return nil
	},
}

func submitAnnotation(ctx context.Context, c *apiClient, sub api.AnnotationSubmission) (string, error) {
	resp, err := c.post(ctx, "/", sub)
	if err != nil {
		return "", err
	}
	var res struct {
		FileName string `json:"fileName"`
	}
	if err := decodeJSON(resp, &res); err != nil {
		return "", err
	}
	return res.FileName, nil
}

func init() {
	annotateCmd.Flags().String("user", "", "name of the annotating user")
	annotateCmd.Flags().String("device", "", "device id")
	annotateCmd.Flags().String("event", "", "event id")
	annotateCmd.Flags().String("context", "", "free-text context")
	annotateCmd.Flags().String("time", "", "event time (default now)")
}

// --- files ---

var filesCmd = &cobra.Command{
	Use:   "files",
	Short: "List or upload stored files (requires server.token)",
}

var filesListCmd = &cobra.Command{
	Use:   "list <folder>",
	Short: "List the files of a folder",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		files, err := listFiles(cmd.Context(), client, args[0])
		if err != nil {
			return err
		}
		if len(files) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No files.")
			return nil
		}
		for _, f := range files {
			line := fmt.Sprintf("%-40s %10d  %s  %s", f.Name, f.Size, f.LastModified.Format("2006-01-02 15:04:05"), f.Kind())
			if f.Trashed {
				line += " (trashed)"
			}
			fmt.Fprintln(cmd.OutOrStdout(), line)
		}
		return nil
	},
}

func listFiles(ctx context.Context, c *apiClient, folder string) ([]filestore.File, error) {
	resp, err := c.get(ctx, "/files/"+url.PathEscape(folder))
	if err != nil {
		return nil, err
	}
	var res struct {
		Files []filestore.File `json:"files"`
	}
	if err := decodeJSON(resp, &res); err != nil {
		return nil, err
	}
	return res.Files, nil
}

var filesUploadCmd = &cobra.Command{
	Use:   "upload <folder> <path>",
	Short: "Upload a local file into a folder, replacing a file of the same name",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		folder, path := args[0], args[1]
		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading file: %w", err)
		}
		name, _ := cmd.Flags().GetString("name")
		if name == "" {
			name = filepath.Base(path)
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		printStep("Uploading %s to %s", name, folder)
		f, err := uploadFile(cmd.Context(), client, folder, name, content)
		if err != nil {
			return err
		}
		printSuccess("Stored %s (%d bytes, %s)", f.Name, f.Size, f.Kind())
		return nil
	},
}

func uploadFile(ctx context.Context, c *apiClient, folder, name string, content []byte) (filestore.File, error) {
	resp, err := c.put(ctx, "/files/"+url.PathEscape(folder)+"/"+url.PathEscape(name), content, filestore.ContentTypeFor(name))
	if err != nil {
		return filestore.File{}, err
	}
	var res struct {
		File filestore.File `json:"file"`
	}
	if err := decodeJSON(resp, &res); err != nil {
		return filestore.File{}, err
	}
	return res.File, nil
}

func init() {
	filesUploadCmd.Flags().String("name", "", "stored file name (default: base name of path)")
	filesCmd.AddCommand(filesListCmd)
	filesCmd.AddCommand(filesUploadCmd)
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
			fmt.Fprintf(cmd.OutOrStdout(), "  %s = %s\n", colorize(colorBold, k.Key), k.Value)
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
