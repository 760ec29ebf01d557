package handlers

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"gochainpay/engine"
)

// handler dependencies, wired once at startup by workers.Init
var (
	bridge        *engine.BridgeEngine
	publicAddress string
	logger        = zap.NewNop()
)

func Init(b *engine.BridgeEngine, custodyAddress string, log *zap.Logger) {
	bridge = b
	publicAddress = custodyAddress
	if log != nil {
		logger = log
	}
}

func responseJSON(w http.ResponseWriter, data interface{}, code int) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(data)
}

func responsePlain(w http.ResponseWriter, data []byte, code int) {
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(code)
	w.Write(data)
}

func prefixHash(data []byte) common.Hash {
	msg := fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(data), data)
	return crypto.Keccak256Hash([]byte(msg))
}

func publicKeyBytesToAddress(publicKey []byte) *common.Address {
	if len(publicKey) < 1 {
		return nil
	}

	hash := crypto.Keccak256Hash(publicKey[1:]).Bytes()
	address := hash[12:]

	addr := common.HexToAddress(hex.EncodeToString(address))
	return &addr
}

func validateMsgSignature(msg string, sig string) (*common.Address, error) {

	sigBytes, err := hexutil.Decode(sig)
	if err != nil {
		log.Printf("Invalid signature '%s' hex: %s", sig, err.Error())
		return nil, fmt.Errorf("invalid signature hex")
	}

	if len(sigBytes) != 65 {
		return nil, fmt.Errorf("wrong signature length")
	}

	if sigBytes[64] != 27 && sigBytes[64] != 28 && sigBytes[64] != 0 && sigBytes[64] != 1 {
		log.Printf("Wrong signature '%s' checksum: %v", sig, sigBytes[64])
		return nil, fmt.Errorf("wrong signature checksum")
	}

	if sigBytes[64] == 27 || sigBytes[64] == 28 {
		sigBytes[64] = sigBytes[64] - 27
	}

	msgHash := prefixHash([]byte(msg))
	sigPublicKey, err := crypto.Ecrecover(msgHash.Bytes(), sigBytes)
	if err != nil {
		log.Printf("Cannot decode public key: %s", err.Error())
		return nil, fmt.Errorf("cannot decode public key")
	}

	address := publicKeyBytesToAddress(sigPublicKey)

	return address, nil
}
