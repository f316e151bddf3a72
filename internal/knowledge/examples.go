package knowledge

// Examples lists sample questions per domain for API consumers.
func Examples() map[string][]string {
	return map[string][]string{
		"whales": {
			"What are whale wallets doing today?",
			"Show me recent large transactions",
			"Which whales are most active?",
		},
		"airdrops": {
			"What are the latest airdrop opportunities?",
			"Which protocols are expected to airdrop?",
			"Is wallet ADDRESS eligible for any airdrop?",
		},
		"defi": {
			"What is the best yield for USDC?",
			"Compare lending rates across protocols",
			"Which liquidity pools pay the most?",
		},
		"security": {
			"Are there any recent drain alerts?",
			"Has wallet ADDRESS shown suspicious activity?",
			"What is the risk score of wallet ADDRESS?",
		},
		"general": {
			"What is happening on Solana right now?",
			"Which tokens are trending?",
		},
	}
}
