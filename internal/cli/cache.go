// Package cli — cache.go implements the "scriptdeps cache" command group.
//
// Downloaded artifacts are kept in the "maven" directory under the
// configured cache directory, in the same layout as a local Maven
// repository, so repeated runs do not hit the network. "cache list" shows
// what is stored and how much space it takes; "cache clean" deletes it.
// Both only touch that directory, never the rest of the cache directory.
//
// By default, clean prompts for confirmation before deleting anything.
// The --force flag skips the confirmation prompt.
package cli

import (
	"bufio"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mmr-tortoise/scriptdeps/internal/model"
)

// cacheCleanFlags holds the flag values for the cache clean command.
type cacheCleanFlags struct {
	// force skips the interactive confirmation prompt when true.
	force bool
}

// cacheEntry is one file in the artifact cache.
type cacheEntry struct {
	// Path is relative to the cache directory, with forward slashes.
	Path string `json:"path"`

	// Size is in bytes.
	Size int64 `json:"size"`
}

// NewCacheCommand creates the "cache" cobra command and its subcommands.
// It is called from NewRootCommand to register as a subcommand.
func NewCacheCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear the artifact cache",
		Args:  cobra.NoArgs,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List cached artifacts",
		Long: `List every file in the artifact cache with its size.

Examples:
  scriptdeps cache list
  scriptdeps cache list --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCacheList(cmd.OutOrStdout(), cfg.MavenCacheDir())
		},
	})

	flags := &cacheCleanFlags{}
	clean := &cobra.Command{
		Use:   "clean",
		Short: "Delete the artifact cache",
		Long: `Delete every cached artifact. The next resolve downloads them again.

Unless --force is specified, the command prompts for confirmation.

Examples:
  scriptdeps cache clean
  scriptdeps cache clean --force`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCacheClean(cmd.InOrStdin(), cmd.OutOrStdout(), cfg.MavenCacheDir(), flags)
		},
	}
	clean.Flags().BoolVarP(&flags.force, "force", "f", false, "Delete without confirmation")
	cmd.AddCommand(clean)

	return cmd
}

// runCacheList is the main logic function for the cache list command.
func runCacheList(w io.Writer, dir string) error {
	entries, err := scanCache(dir)
	if err != nil {
		return err
	}

	if IsJSONOutput() {
		type resultJSON struct {
			CacheDir   string       `json:"cacheDir"`
			Entries    []cacheEntry `json:"entries"`
			TotalBytes int64        `json:"totalBytes"`
		}
		return printJSON(w, resultJSON{CacheDir: dir, Entries: entries, TotalBytes: totalSize(entries)})
	}

	printCacheListText(w, dir, entries)
	return nil
}

// printCacheListText outputs cached files as a text table.
//
// The table format is:
//
//	SIZE      PATH
//	1.6 MB    org/jetbrains/kotlin/kotlin-stdlib/1.9.22/kotlin-stdlib-1.9.22.jar
//	2.4 kB    org/jetbrains/kotlin/kotlin-stdlib/1.9.22/kotlin-stdlib-1.9.22.pom
//
//	2 files, 1.6 MB in /home/user/.cache/scriptdeps/maven
func printCacheListText(w io.Writer, dir string, entries []cacheEntry) {
	if len(entries) == 0 {
		fmt.Fprintf(w, "Cache is empty (%s).\n", dir)
		return
	}

	fmt.Fprintf(w, "%-9s %s\n", "SIZE", "PATH")
	for _, e := range entries {
		fmt.Fprintf(w, "%-9s %s\n", humanize.Bytes(uint64(e.Size)), e.Path)
	}
	fmt.Fprintf(w, "\n%d %s, %s in %s\n",
		len(entries), plural(len(entries), "file", "files"),
		humanize.Bytes(uint64(totalSize(entries))), dir)
}

// runCacheClean is the main logic function for the cache clean command.
func runCacheClean(in io.Reader, w io.Writer, dir string, flags *cacheCleanFlags) error {
	entries, err := scanCache(dir)
	if err != nil {
		return err
	}
	total := totalSize(entries)

	if len(entries) > 0 && !flags.force {
		confirmed, err := promptConfirmation(in, w, dir, len(entries), total)
		if err != nil {
			return model.WrapCLIError(model.ExitGeneralError, "failed to read confirmation", err)
		}
		if !confirmed {
			fmt.Fprintln(w, "Aborted.")
			return nil
		}
	}

	if err := os.RemoveAll(dir); err != nil {
		return model.WrapCLIError(model.ExitGeneralError,
			fmt.Sprintf("failed to remove cache directory %s", dir), err)
	}
	logger.Info("Cache cleaned", zap.String("dir", dir), zap.Int("files", len(entries)))

	if IsJSONOutput() {
		return printJSON(w, map[string]interface{}{
			"cacheDir":     dir,
			"action":       "cleaned",
			"filesRemoved": len(entries),
			"bytesFreed":   total,
		})
	}
	fmt.Fprintf(w, "Removed %d %s (%s) from %s\n",
		len(entries), plural(len(entries), "file", "files"), humanize.Bytes(uint64(total)), dir)
	return nil
}

// promptConfirmation asks the user to confirm the clean operation.
// It reads a single line and checks for "y" or "yes".
func promptConfirmation(in io.Reader, w io.Writer, dir string, files int, size int64) (bool, error) {
	fmt.Fprintf(w, "About to delete %d cached %s (%s) in %s\n",
		files, plural(files, "file", "files"), humanize.Bytes(uint64(size)), dir)
	fmt.Fprint(w, "\nContinue? [y/N] ")

	// bufio.Scanner handles different line endings across platforms
	// (LF on Unix, CRLF on Windows).
	scanner := bufio.NewScanner(in)
	if scanner.Scan() {
		answer := strings.TrimSpace(strings.ToLower(scanner.Text()))
		return answer == "y" || answer == "yes", nil
	}

	// If input is closed or an error occurred, treat it as "no".
	if err := scanner.Err(); err != nil {
		return false, err
	}
	return false, nil
}

// scanCache lists the regular files under dir, sorted by path. A missing
// directory is an empty cache. Temporary files left by interrupted
// downloads are included so that clean reports them.
func scanCache(dir string) ([]cacheEntry, error) {
	entries := []cacheEntry{}

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir && isNotExist(err) {
				return fs.SkipAll
			}
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		entries = append(entries, cacheEntry{Path: filepath.ToSlash(rel), Size: info.Size()})
		return nil
	})
	if err != nil {
		return nil, model.WrapCLIError(model.ExitGeneralError,
			fmt.Sprintf("failed to read cache directory %s", dir), err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Path < entries[j].Path
	})
	return entries, nil
}

func totalSize(entries []cacheEntry) int64 {
	var total int64
	for _, e := range entries {
		total += e.Size
	}
	return total
}
