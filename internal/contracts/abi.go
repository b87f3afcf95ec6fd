package contracts

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const attestationABIJSON = `[
  {"inputs": [{"name": "wallet", "type": "address"}, {"name": "score", "type": "int8"}], "name": "attest", "outputs": [], "stateMutability": "nonpayable", "type": "function"},
  {"inputs": [{"name": "wallet", "type": "address"}], "name": "revokeAttestation", "outputs": [], "stateMutability": "nonpayable", "type": "function"},
  {"inputs": [{"name": "from", "type": "address"}, {"name": "to", "type": "address"}], "name": "getAttestation", "outputs": [{"type": "int8"}], "stateMutability": "view", "type": "function"},
  {"inputs": [{"name": "from", "type": "address"}, {"name": "to", "type": "address"}], "name": "hasAttestation", "outputs": [{"type": "bool"}], "stateMutability": "view", "type": "function"},
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "name": "from", "type": "address"},
      {"indexed": true, "name": "to", "type": "address"},
      {"indexed": false, "name": "score", "type": "int8"},
      {"indexed": false, "name": "timestamp", "type": "uint256"}
    ],
    "name": "AttestationCreated",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "name": "from", "type": "address"},
      {"indexed": true, "name": "to", "type": "address"},
      {"indexed": false, "name": "timestamp", "type": "uint256"}
    ],
    "name": "AttestationRevoked",
    "type": "event"
  },
  {"inputs": [], "name": "AttestationAlreadyExists", "type": "error"}
]`

const projectRegistryABIJSON = `[
  {"inputs": [{"name": "projectId", "type": "uint256"}], "name": "isProjectApproved", "outputs": [{"type": "bool"}], "stateMutability": "view", "type": "function"},
  {"inputs": [], "name": "projectCount", "outputs": [{"type": "uint256"}], "stateMutability": "view", "type": "function"}
]`

const projectRewardsABIJSON = `[
  {
    "inputs": [{"name": "projectId", "type": "uint256"}],
    "name": "getRewardPool",
    "outputs": [
      {"name": "rewardToken", "type": "address"},
      {"name": "totalRewards", "type": "uint256"},
      {"name": "startTime", "type": "uint256"},
      {"name": "endTime", "type": "uint256"},
      {"name": "totalStaked", "type": "uint256"},
      {"name": "totalClaimed", "type": "uint256"}
    ],
    "stateMutability": "view",
    "type": "function"
  }
]`

const erc20SymbolStringJSON = `[
  {"inputs": [], "name": "symbol", "outputs": [{"type": "string"}], "stateMutability": "view", "type": "function"}
]`

const erc20SymbolBytes32JSON = `[
  {"inputs": [], "name": "symbol", "outputs": [{"type": "bytes32"}], "stateMutability": "view", "type": "function"}
]`

type parsedABI struct {
	json string
	once sync.Once
	abi  abi.ABI
	err  error
}

func (p *parsedABI) get() (abi.ABI, error) {
	p.once.Do(func() {
		p.abi, p.err = abi.JSON(strings.NewReader(p.json))
	})
	return p.abi, p.err
}

var (
	attestationABI     = &parsedABI{json: attestationABIJSON}
	projectRegistryABI = &parsedABI{json: projectRegistryABIJSON}
	projectRewardsABI  = &parsedABI{json: projectRewardsABIJSON}
	erc20StringABI     = &parsedABI{json: erc20SymbolStringJSON}
	erc20Bytes32ABI    = &parsedABI{json: erc20SymbolBytes32JSON}
)
