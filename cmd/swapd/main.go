package main

import (
	"fmt"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/spf13/viper"

	"github.com/BeamMW/btc-swap-driver/btcman/assembler"
	"github.com/BeamMW/btc-swap-driver/cmd"
	"github.com/BeamMW/btc-swap-driver/logconfig"
)

const (
	ENV_CONFIG_FILE_PATH = "BTC_SWAP_CONFIG"
)

func main() {
	// Tool to read environment variables
	viper.AutomaticEnv()

	// Accessing an environment variable of configuration file location.
	configFile := viper.GetString(ENV_CONFIG_FILE_PATH)
	fmt.Printf("Swap driver configuration file = %s\n", configFile)

	// See if file exists
	if !cmd.FileExists(configFile) {
		fmt.Printf("Swap driver configuration file not found: %s\n", configFile)
		return
	}

	// Read from config file.
	if !initializeViper(configFile) {
		return
	}

	switch viper.GetString("LOG_LEVEL") {
	case "debug":
		logconfig.ConfigDebugLogger()
	case "info":
		logconfig.ConfigInfoLogger()
	default:
		logconfig.ConfigProductionLogger()
	}

	// Make the configuration
	ssc := prepareSwapServerConfig()
	if ssc == nil {
		fmt.Printf("Error loading swap driver configuration\n")
		return
	}

	fmt.Println("Starting btc swap driver... press Ctrl+C to kill it")
	// Start server and block.
	cmd.StartSwapServerAndWait(ssc)
}

func initializeViper(filePath string) bool {
	viper.SetConfigFile(filePath)
	if err := viper.ReadInConfig(); err != nil {
		fmt.Printf("Error reading configuration file, %s", err)
		return false
	}
	return true
}

// prepareSwapServerConfig reads configuration variables and returns a SwapServerConfig.
func prepareSwapServerConfig() *cmd.SwapServerConfig {
	// Parse the BTC chain config (e.g., "regtest", "testnet", or "mainnet").
	var btcParams *chaincfg.Params
	switch viper.GetString("BTC_CHAIN_CONFIG") {
	case "testnet":
		btcParams = assembler.GetTestnetParams()
	case "mainnet":
		btcParams = assembler.GetMainnetParams()
	case "regtest":
		btcParams = assembler.GetRegtestParams()
	default:
		// default to regtest
		btcParams = assembler.GetRegtestParams()
	}

	pollMs := viper.GetInt64("POLL_INTERVAL_MS")
	if pollMs <= 0 {
		pollMs = 5000
	}

	withdrawFee := viper.GetInt64("WITHDRAW_FEE_SAT")
	if withdrawFee <= 0 {
		withdrawFee = 1_000
	}

	return &cmd.SwapServerConfig{
		BtcRpcServer:   viper.GetString("BTC_RPC_SERVER"),
		BtcRpcPort:     viper.GetString("BTC_RPC_PORT"),
		BtcRpcUsername: viper.GetString("BTC_RPC_USERNAME"),
		BtcRpcPwd:      viper.GetString("BTC_RPC_PWD"),
		BtcChainConfig: btcParams,

		DbFilePath: viper.GetString("DB_FILE_PATH"),

		SwapID:          viper.GetString("SWAP_ID"),
		SwapAmountSat:   viper.GetInt64("SWAP_AMOUNT_SAT"),
		SwapPeerAddress: viper.GetString("SWAP_PEER_ADDRESS"),
		SwapIsInitiator: viper.GetBool("SWAP_IS_INITIATOR"),
		SwapIsBtcOwner:  viper.GetBool("SWAP_IS_BTC_OWNER"),

		PollInterval:   time.Duration(pollMs) * time.Millisecond,
		WithdrawFeeSat: withdrawFee,

		HttpIp:   viper.GetString("HTTP_IP"),
		HttpPort: viper.GetString("HTTP_PORT"),
	}
}
