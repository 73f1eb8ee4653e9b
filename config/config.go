package config

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	jRPC "github.com/0xPolygon/cdk-rpc/rpc"
	"github.com/mitchellh/mapstructure"
	"github.com/pwang200/xbridge-witness/config/types"
	"github.com/pwang200/xbridge-witness/log"
	"github.com/pwang200/xbridge-witness/xchain"
	"github.com/spf13/viper"
	"github.com/urfave/cli/v2"
)

const (
	// FlagCfg is the flag for cfg.
	FlagCfg = "cfg"

	// EnvVarPrefix is the prefix for environment variable overrides.
	EnvVarPrefix = "XBWD"

	// ConfigType is the accepted config file format.
	ConfigType = "toml"

	// DBFileName is the attestation database file inside DBPath.
	DBFileName = "xchain_txns.sqlite"
)

/*
Config represents the configuration of the whole witness daemon.
The file is [TOML format].

[TOML format]: https://en.wikipedia.org/wiki/TOML
*/
type Config struct {
	// LockingChainEndpoint is the websocket URL of the locking chain node
	LockingChainEndpoint string `mapstructure:"LockingChainEndpoint"`
	// IssuingChainEndpoint is the websocket URL of the issuing chain node
	IssuingChainEndpoint string `mapstructure:"IssuingChainEndpoint"`

	// XChainBridge is the corridor this witness attests for
	XChainBridge xchain.BridgeSpec `mapstructure:"XChainBridge"`

	// DBPath is the directory holding the attestation database
	DBPath string `mapstructure:"DBPath"`

	// SigningKeySeed is the hex seed the attestation signing key derives from
	SigningKeySeed string `mapstructure:"SigningKeySeed"`
	// SigningKeyType selects the signature scheme (secp256k1 or ed25519)
	SigningKeyType string `mapstructure:"SigningKeyType" jsonschema:"enum=secp256k1,enum=ed25519"`

	// LockingChainRewardAccount collects this witness's rewards on the locking chain
	LockingChainRewardAccount xchain.AccountID `mapstructure:"LockingChainRewardAccount"`
	// IssuingChainRewardAccount collects this witness's rewards on the issuing chain
	IssuingChainRewardAccount xchain.AccountID `mapstructure:"IssuingChainRewardAccount"`

	// WitnessSubmit enables submitting attestation batches; when false,
	// attestations are only stored for RPC harvesting
	WitnessSubmit bool `mapstructure:"WitnessSubmit"`
	// SubmitAccount pays the fee of submitted attestation batch transactions
	SubmitAccount string `mapstructure:"SubmitAccount"`
	// SubmitSecret authorizes SubmitAccount on the destination chain
	SubmitSecret string `mapstructure:"SubmitSecret"`
	// MaxAttestations is the per-ledger attestation batch size
	MaxAttestations int `mapstructure:"MaxAttestations"`

	// HeartbeatInterval is the period of the batch-flush heartbeat
	HeartbeatInterval types.Duration `mapstructure:"HeartbeatInterval"`

	// RPC is the config of the witness JSON-RPC server
	RPC jRPC.Config `mapstructure:"RPC"`

	// Log configures level, output and format for all components
	Log log.Config `mapstructure:"Log"`
}

// DBFile returns the full path of the attestation database file.
func (c *Config) DBFile() string {
	return filepath.Join(c.DBPath, DBFileName)
}

// Validate rejects configurations the daemon cannot run with.
func (c *Config) Validate() error {
	if c.LockingChainEndpoint == "" {
		return errors.New("missing LockingChainEndpoint")
	}
	if c.IssuingChainEndpoint == "" {
		return errors.New("missing IssuingChainEndpoint")
	}
	if c.XChainBridge.LockingChainDoor.IsZero() || c.XChainBridge.IssuingChainDoor.IsZero() {
		return errors.New("missing XChainBridge door accounts")
	}
	if c.SigningKeySeed == "" {
		return errors.New("missing SigningKeySeed")
	}
	if _, err := xchain.ParseKeyType(c.SigningKeyType); err != nil {
		return err
	}
	if c.WitnessSubmit {
		if c.SubmitAccount == "" || c.SubmitSecret == "" {
			return errors.New("WitnessSubmit requires SubmitAccount and SubmitSecret")
		}
		if _, err := xchain.ParseAccountID(c.SubmitAccount); err != nil {
			return fmt.Errorf("invalid SubmitAccount: %w", err)
		}
	}
	return nil
}

// Default parses the default configuration values.
func Default() (*Config, error) {
	var cfg Config
	viper.SetConfigType(ConfigType)

	err := viper.ReadConfig(bytes.NewBuffer([]byte(DefaultValues)))
	if err != nil {
		return nil, err
	}
	err = viper.Unmarshal(&cfg, viper.DecodeHook(decodeHooks()))
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Load loads the configuration from the file given by the cfg flag, layered
// over the defaults, with XBWD_-prefixed environment overrides.
func Load(ctx *cli.Context) (*Config, error) {
	cfg, err := Default()
	if err != nil {
		return nil, fmt.Errorf("error loading default configuration: %w", err)
	}

	configFilePath := ctx.String(FlagCfg)
	if configFilePath != "" {
		viper.SetConfigFile(configFilePath)
		viper.SetConfigType(strings.TrimPrefix(filepath.Ext(configFilePath), "."))
	}
	viper.AutomaticEnv()
	viper.SetEnvPrefix(EnvVarPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if configFilePath != "" {
		if err := viper.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if errors.As(err, &notFound) {
				log.Error("config file not found: ", configFilePath)
			}
			return nil, err
		}
	}

	if err := viper.Unmarshal(cfg, viper.DecodeHook(decodeHooks())); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func decodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		mapstructure.TextUnmarshallerHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
}
