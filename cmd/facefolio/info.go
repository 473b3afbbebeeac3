package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MrCodeEU/facefolio/pkg/config"
)

// Build metadata variables, set by -ldflags at compile time.
var (
	Version   = "dev"
	CommitSHA = "unknown"
	BuildDate = "unknown"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show current configuration",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		printConfig(os.Stdout, cfg)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version information",
	// Version needs no configuration.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("facefolio %s\n", Version)
		fmt.Printf("  Commit: %s\n", CommitSHA)
		fmt.Printf("  Built:  %s\n", BuildDate)
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

func secret(s string) string {
	if s == "" {
		return "(unset)"
	}
	return "********"
}

func printConfig(w io.Writer, c *config.Config) {
	fmt.Fprintln(w, "Current Configuration:")
	fmt.Fprintln(w, "======================")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "[Recognition]")
	fmt.Fprintf(w, "  Match Threshold: %.2f\n", c.Recognition.MatchThreshold)
	fmt.Fprintf(w, "  Same Face:       %.2f\n", c.Recognition.SameFaceThreshold)
	fmt.Fprintf(w, "  Ambiguity Max:   %.2f\n", c.Recognition.AmbiguityMaxDistance)
	fmt.Fprintf(w, "  IoU Threshold:   %.2f\n", c.Recognition.IoUThreshold)
	fmt.Fprintf(w, "  Index:           %s\n", c.Recognition.Index)
	if c.Recognition.EmbeddingDimension > 0 {
		fmt.Fprintf(w, "  Dimension:       %d\n", c.Recognition.EmbeddingDimension)
	} else {
		fmt.Fprintln(w, "  Dimension:       inferred")
	}
	fmt.Fprintf(w, "  Crop Padding:    %.2f\n", c.Recognition.CropPadding)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "[Detector]")
	fmt.Fprintf(w, "  Backend:         %s\n", c.Detector.Backend)
	if c.Detector.Backend == "dlib" {
		fmt.Fprintf(w, "  Model Path:      %s\n", c.Detector.ModelPath)
	} else {
		fmt.Fprintf(w, "  URL:             %s\n", c.Detector.URL)
	}
	fmt.Fprintf(w, "  Timeout:         %d seconds\n", c.Detector.Timeout)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "[Gallery]")
	fmt.Fprintf(w, "  Path:            %s\n", c.Gallery.Path)
	fmt.Fprintf(w, "  Encryption:      %t\n", c.Gallery.EncryptionEnabled)
	fmt.Fprintf(w, "  Compression:     %s\n", c.Gallery.Compression)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "[Sessions]")
	fmt.Fprintf(w, "  Backend:         %s\n", c.Sessions.Backend)
	fmt.Fprintf(w, "  TTL:             %d seconds\n", c.Sessions.TTL)
	if c.Sessions.Backend == "redis" {
		fmt.Fprintf(w, "  Redis:           %s (db %d)\n", strings.Join(c.Sessions.Redis.Addrs, ", "), c.Sessions.Redis.DB)
		fmt.Fprintf(w, "  Redis Password:  %s\n", secret(c.Sessions.Redis.Password))
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "[Storage]")
	fmt.Fprintf(w, "  Scratch Dir:     %s\n", c.Storage.ScratchDir)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "[Collections]")
	fmt.Fprintf(w, "  Backend:         %s\n", c.Collections.Backend)
	if c.Collections.Backend == "minio" {
		fmt.Fprintf(w, "  Endpoint:        %s\n", c.Collections.Minio.Endpoint)
		fmt.Fprintf(w, "  Bucket:          %s\n", c.Collections.Minio.Bucket)
		fmt.Fprintf(w, "  Access Key:      %s\n", secret(c.Collections.Minio.AccessKey))
		fmt.Fprintf(w, "  Secret Key:      %s\n", secret(c.Collections.Minio.SecretKey))
	} else {
		fmt.Fprintf(w, "  Dir:             %s\n", c.Collections.Dir)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "[Server]")
	fmt.Fprintf(w, "  Listen:          %s:%d\n", c.Server.Host, c.Server.Port)
	fmt.Fprintf(w, "  Upload Rate:     %.1f/s (burst %d)\n", c.Server.UploadRate, c.Server.UploadBurst)
	fmt.Fprintf(w, "  Max Upload:      %d MB\n", c.Server.MaxUploadMB)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "[Logging]")
	fmt.Fprintf(w, "  Level:           %s\n", c.Logging.Level)
	fmt.Fprintf(w, "  Format:          %s\n", c.Logging.Format)
	fmt.Fprintf(w, "  File:            %s\n", c.Logging.File)
}
