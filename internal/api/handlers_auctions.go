package api

import (
	"net/http"
	"strconv"
	"strings"

	apperrors "github.com/auction-indexer/internal/errors"
	"github.com/auction-indexer/internal/models"
	"github.com/auction-indexer/internal/service"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
)

// handleListAuctions handles GET /auctions
func (s *Server) handleListAuctions(w http.ResponseWriter, r *http.Request) {
	input, err := parseAuctionListInput(r)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	result, err := s.queryService.ListAuctions(r.Context(), input)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// handleCountAuctions handles GET /auctions/count
func (s *Server) handleCountAuctions(w http.ResponseWriter, r *http.Request) {
	counts, err := s.queryService.CountAuctions(r.Context())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, counts)
}

// handleGetAuction handles GET /auctions/{id}
func (s *Server) handleGetAuction(w http.ResponseWriter, r *http.Request) {
	view, err := s.queryService.GetAuction(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

// handleGetAuctionBids handles GET /auctions/{id}/bids
func (s *Server) handleGetAuctionBids(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := intParam(q.Get("page"), "page")
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	pageSize, err := intParam(q.Get("page_size"), "page_size")
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	result, err := s.queryService.ListBids(r.Context(), mux.Vars(r)["id"], page, pageSize)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleListTokens(w http.ResponseWriter, r *http.Request) {
	tokens, err := s.queryService.ListTokens(r.Context())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"tokens": tokens})
}

func (s *Server) handleListNFTs(w http.ResponseWriter, r *http.Request) {
	nfts, err := s.queryService.ListNFTs(r.Context())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"nfts": nfts})
}

// parseAuctionListInput reads the listing filters from the query string.
// Range checks on page and page_size are left to the query service.
func parseAuctionListInput(r *http.Request) (service.AuctionListInput, error) {
	q := r.URL.Query()
	var input service.AuctionListInput

	if v := q.Get("status"); v != "" {
		status := models.AuctionStatus(strings.ToLower(v))
		input.Status = &status
	}

	if v := q.Get("auction_type"); v != "" {
		n, err := strconv.ParseUint(v, 10, 8)
		if err != nil {
			return input, apperrors.NewInvalidParameterError("auction_type", "must be 0 (English) or 1 (Dutch)")
		}
		t := models.AuctionType(n)
		input.AuctionType = &t
	}

	if v := q.Get("seller"); v != "" {
		seller, err := sellerFilter(v)
		if err != nil {
			return input, err
		}
		input.Seller = seller
	}

	var err error
	if input.Page, err = intParam(q.Get("page"), "page"); err != nil {
		return input, err
	}
	if input.PageSize, err = intParam(q.Get("page_size"), "page_size"); err != nil {
		return input, err
	}

	input.SortBy = models.AuctionSort(q.Get("sort_by"))

	if v := q.Get("sort_desc"); v != "" {
		desc, err := strconv.ParseBool(v)
		if err != nil {
			return input, apperrors.NewInvalidParameterError("sort_desc", "must be true or false")
		}
		input.SortDesc = desc
	}

	return input, nil
}

// sellerFilter accepts a full address or a hex fragment of one. Stores match
// it as a case-insensitive substring.
func sellerFilter(raw string) (string, error) {
	if common.IsHexAddress(raw) {
		return common.HexToAddress(raw).Hex(), nil
	}
	digits := strings.TrimPrefix(strings.TrimPrefix(raw, "0x"), "0X")
	if digits == "" || len(digits) > 2*common.AddressLength || strings.IndexFunc(digits, notHexDigit) >= 0 {
		return "", apperrors.NewInvalidAddressError(raw)
	}
	return strings.ToLower(raw), nil
}

func notHexDigit(r rune) bool {
	return !('0' <= r && r <= '9' || 'a' <= r && r <= 'f' || 'A' <= r && r <= 'F')
}

func intParam(raw, name string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperrors.NewInvalidParameterError(name, "must be an integer")
	}
	return n, nil
}
