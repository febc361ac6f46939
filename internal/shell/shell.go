package shell

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/0xRadioAc7iv/caskdb/core"
)

// Store is the part of a datastore the shell drives.
type Store interface {
	Get(key []byte) ([]byte, bool, error)
	Insert(key, value []byte) error
	Delete(key []byte) error
	Has(key []byte) (bool, error)
	Len() (int, error)
	Keys() ([][]byte, error)
	Sync() error
	RecoveryStats() core.RecoveryStats
	ActiveFile() string
}

// Snapshotter renders current metrics for the stats command.
type Snapshotter interface {
	Snapshot() (string, error)
}

const prompt = "> "

// Shell executes commands against a Store.
type Shell struct {
	store   Store
	metrics Snapshotter
	logger  *zap.Logger
}

// New creates a shell. metrics may be nil, in which case stats reports that
// metrics are disabled.
func New(store Store, metrics Snapshotter, logger *zap.Logger) *Shell {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Shell{store: store, metrics: metrics, logger: logger}
}

// Run reads commands from in until exit, EOF or ctx is done, writing every
// reply to out.
//
// Lines are read on a separate goroutine. When ctx ends first and in is an
// io.Closer, in is closed so a pending read returns and that goroutine exits.
// Any other reader keeps it blocked until the read returns on its own.
func (s *Shell) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)

	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	fmt.Fprint(out, prompt)
	for {
		select {
		case <-ctx.Done():
			if c, ok := in.(io.Closer); ok {
				c.Close()
			}
			fmt.Fprintln(out)
			return nil
		case line, ok := <-lines:
			if !ok {
				fmt.Fprintln(out)
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}

			reply, quit := s.ExecuteLine(line)
			if reply != "" {
				fmt.Fprintln(out, reply)
			}
			if quit {
				return nil
			}
			fmt.Fprint(out, prompt)
		}
	}
}

// ExecuteLine parses and runs one line. Blank lines produce no reply.
func (s *Shell) ExecuteLine(line string) (reply string, quit bool) {
	cmd, err := ParseCommand(line)
	if errors.Is(err, ErrEmptyLine) {
		return "", false
	}
	if err != nil {
		return "parse error: " + err.Error(), false
	}
	return s.Execute(cmd)
}

// Execute runs cmd and returns the text to show. quit is set by exit.
func (s *Shell) Execute(cmd *Command) (reply string, quit bool) {
	switch cmd.Cmd {
	case "get":
		return s.handleGet(cmd.Key), false
	case "set":
		return s.handleSet(cmd.Key, cmd.Val), false
	case "delete":
		return s.handleDelete(cmd.Key), false
	case "exists":
		return s.handleExists(cmd.Key), false
	case "count":
		return s.handleCount(), false
	case "list":
		return s.handleList(), false
	case "sync":
		return s.handleSync(), false
	case "stats":
		return s.handleStats(), false
	case "recovery":
		return s.handleRecovery(), false
	case "help":
		return strings.TrimSpace(helpString), false
	case "exit":
		return "bye", true
	default:
		return "Invalid Command", false
	}
}

func (s *Shell) fail(cmd string, err error) string {
	s.logger.Warn("Command failed", zap.String("cmd", cmd), zap.Error(err))
	return "error: " + err.Error()
}

func (s *Shell) handleGet(key string) string {
	value, ok, err := s.store.Get([]byte(key))
	if err != nil {
		return s.fail("get", err)
	}
	if !ok {
		return "nil"
	}
	return string(value)
}

func (s *Shell) handleSet(key, value string) string {
	if err := s.store.Insert([]byte(key), []byte(value)); err != nil {
		return s.fail("set", err)
	}
	return "ok"
}

func (s *Shell) handleDelete(key string) string {
	if err := s.store.Delete([]byte(key)); err != nil {
		return s.fail("delete", err)
	}
	return "ok"
}

func (s *Shell) handleExists(key string) string {
	ok, err := s.store.Has([]byte(key))
	if err != nil {
		return s.fail("exists", err)
	}
	return strconv.FormatBool(ok)
}

func (s *Shell) handleCount() string {
	n, err := s.store.Len()
	if err != nil {
		return s.fail("count", err)
	}
	return strconv.Itoa(n)
}

func (s *Shell) handleList() string {
	keys, err := s.store.Keys()
	if err != nil {
		return s.fail("list", err)
	}
	if len(keys) == 0 {
		return "nil"
	}

	names := make([]string, len(keys))
	for i, k := range keys {
		names[i] = string(k)
	}
	sort.Strings(names)

	return "----- KEYS START -----\n" + strings.Join(names, "\n") + "\n----- KEYS END -----"
}

func (s *Shell) handleSync() string {
	if err := s.store.Sync(); err != nil {
		return s.fail("sync", err)
	}
	return "ok"
}

func (s *Shell) handleStats() string {
	if s.metrics == nil {
		return "metrics disabled"
	}
	snap, err := s.metrics.Snapshot()
	if err != nil {
		return s.fail("stats", err)
	}
	return strings.TrimSpace(snap)
}

func (s *Shell) handleRecovery() string {
	st := s.store.RecoveryStats()

	var b strings.Builder
	fmt.Fprintf(&b, "active file:        %s\n", filepath.Base(s.store.ActiveFile()))
	fmt.Fprintf(&b, "files scanned:      %d\n", st.FilesScanned)
	fmt.Fprintf(&b, "records replayed:   %d\n", st.RecordsReplayed)
	fmt.Fprintf(&b, "tombstones applied: %d\n", st.TombstonesApplied)
	fmt.Fprintf(&b, "corrupt records:    %d\n", st.CorruptRecords)
	fmt.Fprintf(&b, "truncated files:    %d\n", st.TruncatedFiles)
	fmt.Fprintf(&b, "bytes scanned:      %d\n", st.BytesScanned)
	fmt.Fprintf(&b, "duration:           %s", st.Duration)
	for _, c := range st.Corruptions {
		fmt.Fprintf(&b, "\n  corrupt  %s @%d (%d bytes)", filepath.Base(c.File), c.Offset, c.Size)
	}
	for _, t := range st.Truncations {
		fmt.Fprintf(&b, "\n  torn     %s @%d (%d bytes ignored)", filepath.Base(t.File), t.Offset, t.Remaining)
	}
	return b.String()
}

const helpString = `
Available Commands:

SET <key> <value>
  Store a value for the given key. Quote values that contain spaces.
  Overwrites the value if the key already exists.
  Response: ok

GET <key>
  Retrieve the value associated with the key.
  Response: value | nil

DELETE <key>
  Delete the key and its value.
  Response: ok

EXISTS <key>
  Check if a key exists.
  Response: true | false

COUNT
  Return the total number of keys stored.
  Response: integer

LIST
  List all stored keys.
  Response: list of keys | nil

SYNC
  Flush the active data file to disk.
  Response: ok

STATS
  Print datastore metrics in Prometheus text format.

RECOVERY
  Show what was found while replaying the data files at startup.

HELP
  Show this help message.

EXIT
  Close the datastore and quit.
`
