package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	ethav "github.com/KOREAN139/ethereum-address-validator"
	"github.com/ethereum/go-ethereum/common"

	"gochainpay/redis"
	"gochainpay/registry"
	"gochainpay/types"
)

type NewPaymentRequest struct {
	ProductID    string `json:"productId"`
	UserAlias    string `json:"userAlias"`
	PayerAddress string `json:"payerAddress"`
	SourceChain  int64  `json:"sourceChain"`
	DestChain    int64  `json:"destChain"`
	Asset        string `json:"asset"`
	Amount       string `json:"amount"`
	TransferType string `json:"transferType"`
	Signature    string `json:"signature"`
}

// NewPayment registers a pending payment for the execution worker. The payer
// proves control of their address by personal-signing the receiver
// identifier (product id or user alias).
func NewPayment(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		logger.Warn("Error reading request body: " + err.Error())
		responseJSON(w, &APIResponse{
			Status:  "error",
			Message: "Error reading request body",
		}, http.StatusBadRequest)
		return
	}

	var req NewPaymentRequest
	err = json.Unmarshal(body, &req)
	if err != nil {
		logger.Warn("Error unmarshalling request body: " + err.Error())
		responseJSON(w, &APIResponse{
			Status:  "error",
			Message: "Cannot unmarshal input JSON",
		}, http.StatusBadRequest)
		return
	}

	receiver := req.ProductID
	if receiver == "" {
		receiver = req.UserAlias
	}
	if receiver == "" {
		responseJSON(w, &APIResponse{
			Status:  "error",
			Field:   "productId",
			Message: "Either product id or user alias must be provided",
		}, http.StatusBadRequest)
		return
	}

	if err := ethav.Validate(common.HexToAddress(req.PayerAddress).Hex()); err != nil {
		logger.Warn("Error validating payer address '" + req.PayerAddress + "': " + err.Error())
		responseJSON(w, &APIResponse{
			Status:  "error",
			Field:   "payerAddress",
			Message: "No ethereum address or invalid address provided",
		}, http.StatusBadRequest)
		return
	}

	if _, ok := registry.ByChainID(req.SourceChain); !ok {
		responseJSON(w, &APIResponse{
			Status:  "error",
			Field:   "sourceChain",
			Message: "Source chain not provided or not supported",
		}, http.StatusBadRequest)
		return
	}
	if _, ok := registry.ByChainID(req.DestChain); !ok {
		responseJSON(w, &APIResponse{
			Status:  "error",
			Field:   "destChain",
			Message: "Destination chain not provided or not supported",
		}, http.StatusBadRequest)
		return
	}

	if req.Amount == "" {
		responseJSON(w, &APIResponse{
			Status:  "error",
			Field:   "amount",
			Message: "Amount not provided",
		}, http.StatusBadRequest)
		return
	}

	transferType := req.TransferType
	if transferType == "" {
		transferType = "standard"
	}
	if transferType != "fast" && transferType != "standard" {
		responseJSON(w, &APIResponse{
			Status:  "error",
			Field:   "transferType",
			Message: "Transfer type must be fast or standard",
		}, http.StatusBadRequest)
		return
	}

	// check that signature is valid
	address, err := validateMsgSignature(receiver, req.Signature)
	if err != nil || address == nil {
		logger.Warn("Error recovering sig address from '" + req.Signature + "'")
		responseJSON(w, &APIResponse{
			Status:  "error",
			Field:   "signature",
			Message: "No signature or malformed signature provided",
		}, http.StatusBadRequest)
		return
	}

	if !strings.EqualFold(req.PayerAddress, address.Hex()) {
		logger.Warn("Recovered sig address '" + address.Hex() + "', provided '" + req.PayerAddress + "'")
		responseJSON(w, &APIResponse{
			Status:  "error",
			Field:   "signature",
			Message: "Signature does not match the address provided",
		}, http.StatusBadRequest)
		return
	}

	asset := req.Asset
	if asset == "" {
		// default to the bridge stablecoin on the source chain
		d, _ := registry.ByChainID(req.SourceChain)
		asset = d.USDCAddress
	}

	rec := types.PaymentRecord{
		Status:       "pending",
		ProductID:    req.ProductID,
		UserAlias:    req.UserAlias,
		PayerAddress: common.HexToAddress(req.PayerAddress).Hex(),
		SourceChain:  req.SourceChain,
		DestChain:    req.DestChain,
		Asset:        asset,
		Amount:       req.Amount,
		TransferType: transferType,
		TsCreated:    time.Now().Unix(),
		TsUpdated:    time.Now().Unix(),
	}

	err = redis.UpsertPaymentRecord(&rec)
	if err != nil {
		logger.Error("Error storing payment record: " + err.Error())
		responseJSON(w, &APIResponse{
			Status:  "error",
			Message: "Error registering payment",
		}, http.StatusInternalServerError)
		return
	}

	logger.Info("Created new payment " + rec.ID + " for " + receiver + " from " + rec.PayerAddress)

	responseJSON(w, &APIPaymentResponse{
		Status:  "ok",
		ID:      rec.ID,
		Address: publicAddress,
	}, http.StatusOK)
}
