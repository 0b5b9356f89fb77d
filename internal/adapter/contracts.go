package adapter

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Event and method names shared by the factory and auction contracts
const (
	EventAuctionCreated = "AuctionCreated"
	EventBidPlaced      = "BidPlaced"

	MethodAuctionCount      = "auctionCount"
	MethodAuctions          = "auctions"
	MethodGetAuctionDetails = "getAuctionDetails"
	MethodAuctionType       = "auctionType"
	MethodGetCurrentPrice   = "getCurrentPrice"
	MethodReservePrice      = "reservePrice"
	MethodDuration          = "duration"
	MethodSymbol            = "symbol"
	MethodName              = "name"
	MethodDecimals          = "decimals"
	MethodTokenURI          = "tokenURI"
)

const factoryABIJSON = `[
{"anonymous":false,"inputs":[
  {"indexed":false,"internalType":"uint256","name":"auctionId","type":"uint256"},
  {"indexed":false,"internalType":"address","name":"auctionAddress","type":"address"},
  {"indexed":false,"internalType":"uint8","name":"auctionType","type":"uint8"},
  {"indexed":false,"internalType":"address","name":"seller","type":"address"}],
 "name":"AuctionCreated","type":"event"},
{"inputs":[],"name":"auctionCount","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
{"inputs":[{"internalType":"uint256","name":"","type":"uint256"}],"name":"auctions","outputs":[{"internalType":"address","name":"","type":"address"}],"stateMutability":"view","type":"function"}
]`

const auctionDetailsJSON = `{"inputs":[],"name":"getAuctionDetails","outputs":[
  {"internalType":"address","name":"seller","type":"address"},
  {"internalType":"address","name":"highestBidder","type":"address"},
  {"internalType":"uint256","name":"highestBid","type":"uint256"},
  {"internalType":"uint256","name":"endTime","type":"uint256"},
  {"internalType":"bool","name":"ended","type":"bool"},
  {"internalType":"address","name":"assetAddress","type":"address"},
  {"internalType":"uint256","name":"assetId","type":"uint256"},
  {"internalType":"uint256","name":"amount","type":"uint256"},
  {"internalType":"address","name":"paymentToken","type":"address"}],
 "stateMutability":"view","type":"function"}`

const bidPlacedJSON = `{"anonymous":false,"inputs":[
  {"indexed":false,"internalType":"address","name":"bidder","type":"address"},
  {"indexed":false,"internalType":"uint256","name":"amount","type":"uint256"}],
 "name":"BidPlaced","type":"event"}`

const auctionABIJSON = `[` + auctionDetailsJSON + `,` + bidPlacedJSON + `,
{"inputs":[],"name":"auctionType","outputs":[{"internalType":"uint8","name":"","type":"uint8"}],"stateMutability":"view","type":"function"}
]`

const dutchAuctionABIJSON = `[` + auctionDetailsJSON + `,` + bidPlacedJSON + `,
{"inputs":[],"name":"auctionType","outputs":[{"internalType":"uint8","name":"","type":"uint8"}],"stateMutability":"view","type":"function"},
{"inputs":[],"name":"getCurrentPrice","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
{"inputs":[],"name":"reservePrice","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
{"inputs":[],"name":"duration","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"}
]`

const erc20ABIJSON = `[
{"inputs":[],"name":"symbol","outputs":[{"internalType":"string","name":"","type":"string"}],"stateMutability":"view","type":"function"},
{"inputs":[],"name":"name","outputs":[{"internalType":"string","name":"","type":"string"}],"stateMutability":"view","type":"function"},
{"inputs":[],"name":"decimals","outputs":[{"internalType":"uint8","name":"","type":"uint8"}],"stateMutability":"view","type":"function"}
]`

const erc721ABIJSON = `[
{"inputs":[{"internalType":"uint256","name":"tokenId","type":"uint256"}],"name":"tokenURI","outputs":[{"internalType":"string","name":"","type":"string"}],"stateMutability":"view","type":"function"}
]`

// Contracts holds the parsed ABIs of every contract the indexer reads
type Contracts struct {
	Factory      abi.ABI
	Auction      abi.ABI
	DutchAuction abi.ABI
	ERC20        abi.ABI
	ERC721       abi.ABI
}

// ContractPaths optionally overrides the embedded ABIs with JSON files on disk
type ContractPaths struct {
	Factory      string
	Auction      string
	DutchAuction string
}

// DefaultContracts parses the embedded ABIs
func DefaultContracts() *Contracts {
	c, err := LoadContracts(ContractPaths{})
	if err != nil {
		// embedded definitions are constants; a failure here is a programming error
		panic(err)
	}
	return c
}

// LoadContracts parses the embedded ABIs, replacing any that have a path set.
// Override files must still define the events and methods the indexer uses.
func LoadContracts(paths ContractPaths) (*Contracts, error) {
	var c Contracts
	var err error

	if c.Factory, err = loadABI("factory", paths.Factory, factoryABIJSON); err != nil {
		return nil, err
	}
	if c.Auction, err = loadABI("auction", paths.Auction, auctionABIJSON); err != nil {
		return nil, err
	}
	if c.DutchAuction, err = loadABI("dutch auction", paths.DutchAuction, dutchAuctionABIJSON); err != nil {
		return nil, err
	}
	if c.ERC20, err = loadABI("erc20", "", erc20ABIJSON); err != nil {
		return nil, err
	}
	if c.ERC721, err = loadABI("erc721", "", erc721ABIJSON); err != nil {
		return nil, err
	}

	if _, ok := c.Factory.Events[EventAuctionCreated]; !ok {
		return nil, fmt.Errorf("factory ABI has no %s event", EventAuctionCreated)
	}
	if _, ok := c.Auction.Events[EventBidPlaced]; !ok {
		return nil, fmt.Errorf("auction ABI has no %s event", EventBidPlaced)
	}
	if _, ok := c.Auction.Methods[MethodGetAuctionDetails]; !ok {
		return nil, fmt.Errorf("auction ABI has no %s method", MethodGetAuctionDetails)
	}
	return &c, nil
}

func loadABI(name, path, embedded string) (abi.ABI, error) {
	raw := embedded
	if path != "" {
		data, err := os.ReadFile(path) // #nosec G304 - path comes from operator config
		if err != nil {
			return abi.ABI{}, fmt.Errorf("read %s ABI: %w", name, err)
		}
		raw = extractABI(data)
	}

	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("parse %s ABI: %w", name, err)
	}
	return parsed, nil
}

// extractABI accepts either a bare ABI array or a build artifact with an "abi" key
func extractABI(data []byte) string {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		return trimmed
	}
	if artifact, err := decodeArtifact(data); err == nil && artifact != "" {
		return artifact
	}
	return trimmed
}

// decodeArtifact pulls the "abi" member out of a Hardhat or Truffle build file
func decodeArtifact(data []byte) (string, error) {
	var artifact struct {
		ABI json.RawMessage `json:"abi"`
	}
	if err := json.Unmarshal(data, &artifact); err != nil {
		return "", err
	}
	return string(artifact.ABI), nil
}
