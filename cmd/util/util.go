package util

import (
	"fmt"
	"strings"

	"github.com/ValentinKolb/nibble/lib/common"
	"github.com/ValentinKolb/nibble/lib/db"
	"github.com/ValentinKolb/nibble/lib/db/engines/maple"
	"github.com/ValentinKolb/nibble/lib/db/engines/trie"
	"github.com/ValentinKolb/nibble/lib/index"
	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// --------------------------------------------------------------------------
// Configuration
// --------------------------------------------------------------------------

// InitConfig loads .env files and makes viper read NIBBLE_* environment variables
func InitConfig() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	viper.SetEnvPrefix("nibble")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}

// SetupEngineFlags adds the flags that configure an engine
func SetupEngineFlags(cmd *cobra.Command) {
	defaults := trie.DefaultOptions()

	key := "engine"
	cmd.Flags().String(key, string(db.ImplTrie), WrapString("Engine implementation: trie or maple (unordered hash map baseline, ignores the shard capacity and ceiling flags)"))

	key = "shards"
	cmd.Flags().Int(key, defaults.NumShards, WrapString("Number of independently locked shards of the engine"))

	key = "shard-capacity"
	cmd.Flags().Int(key, defaults.ShardCapacity, WrapString("Initial capacity of every shard index. The capacity doubles when it is exceeded"))

	key = "shard-max-bytes"
	cmd.Flags().Uint64(key, index.DefaultMaxArenaBytes, WrapString("Arena ceiling of every shard in bytes. Inserts beyond it fail"))

	key = "off-heap"
	cmd.Flags().Bool(key, false, WrapString("Back the shard arenas with anonymous memory mappings instead of the Go heap"))
}

// GetEngineConfig reads the engine configuration from viper
func GetEngineConfig() *common.EngineConfig {
	return &common.EngineConfig{
		Engine:        viper.GetString("engine"),
		NumShards:     viper.GetInt("shards"),
		ShardCapacity: viper.GetInt("shard-capacity"),
		MaxShardBytes: viper.GetUint64("shard-max-bytes"),
		OffHeap:       viper.GetBool("off-heap"),
		LogLevel:      viper.GetString("log-level"),
	}
}

// NewEngine creates the configured engine
func NewEngine(conf *common.EngineConfig) (db.KVDB, error) {
	switch db.Implementation(conf.Engine) {
	case db.ImplTrie, "":
		return trie.NewTrieDB(&trie.DBOptions{
			NumShards:     conf.NumShards,
			ShardCapacity: conf.ShardCapacity,
			MaxShardBytes: conf.MaxShardBytes,
			OffHeap:       conf.OffHeap,
		})
	case db.ImplMaple:
		return maple.NewMapleDB(&maple.DBOptions{NumShards: conf.NumShards}), nil
	default:
		return nil, fmt.Errorf("unknown engine %q (expected trie or maple)", conf.Engine)
	}
}

// --------------------------------------------------------------------------
// Output
// --------------------------------------------------------------------------

var (
	// Heading prints section titles
	Heading = color.New(color.Bold, color.FgCyan).SprintFunc()
	// Pass marks successful checks
	Pass = color.New(color.Bold, color.FgGreen).SprintFunc()
	// Fail marks failed checks
	Fail = color.New(color.Bold, color.FgRed).SprintFunc()
	// Dim prints secondary information
	Dim = color.New(color.Faint).SprintFunc()
)
