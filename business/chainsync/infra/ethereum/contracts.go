package ethereum

import "github.com/fd1az/socialpay-sync/business/chainsync/domain"

// CampaignABI covers the read-only views of the reward campaign contract.
const CampaignABI = `[
	{
		"inputs": [],
		"name": "rewardPerAction",
		"outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [],
		"name": "hashtag",
		"outputs": [{"internalType": "string", "name": "", "type": "string"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [],
		"name": "cadenceSeconds",
		"outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}],
		"stateMutability": "view",
		"type": "function"
	}
]`

// contractViews maps each view method to the contract field it fills.
var contractViews = []struct {
	method string
	field  string
}{
	{"rewardPerAction", domain.FieldRewardPerAction},
	{"hashtag", domain.FieldHashtag},
	{"cadenceSeconds", domain.FieldCadenceSeconds},
}
