package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/0xPolygon/cdk-rpc/rpc"
	"github.com/pwang200/xbridge-witness/attestationdb"
	"github.com/pwang200/xbridge-witness/log"
	"github.com/pwang200/xbridge-witness/xchain"
)

// WITNESS is the namespace of the witness RPC service.
const WITNESS = "witness"

const noSuchTransaction = "No such transaction"

// Storer is the attestation lookup surface the endpoints need.
type Storer interface {
	GetClaim(ctx context.Context, dir xchain.Direction, q attestationdb.ClaimQuery) (attestationdb.ClaimRow, error)
	GetCreateAccount(
		ctx context.Context, dir xchain.Direction, q attestationdb.CreateAccountQuery,
	) (attestationdb.CreateAccountRow, error)
}

// InfoSource reports a liveness snapshot for server_info.
type InfoSource interface {
	GetInfo() map[string]interface{}
}

// WitnessEndpoints contains implementations for the "witness" RPC endpoints
type WitnessEndpoints struct {
	logger      *log.Logger
	readTimeout time.Duration
	store       Storer
	info        InfoSource
	// signalStop asks the outer application to terminate; wired to the
	// daemon's stop channel
	signalStop func()
}

// NewWitnessEndpoints returns WitnessEndpoints
func NewWitnessEndpoints(
	logger *log.Logger,
	readTimeout time.Duration,
	store Storer,
	info InfoSource,
	signalStop func(),
) *WitnessEndpoints {
	return &WitnessEndpoints{
		logger:      logger,
		readTimeout: readTimeout,
		store:       store,
		info:        info,
		signalStop:  signalStop,
	}
}

// AttestationRequest carries the transfer tuple a counterparty quotes back
// to harvest this witness's signature.
type AttestationRequest struct {
	Bridge         json.RawMessage `json:"bridge"`
	SendingAmount  json.RawMessage `json:"sending_amount"`
	ClaimID        json.RawMessage `json:"claim_id"`
	Door           string          `json:"door"`
	SendingAccount string          `json:"sending_account"`
	RewardAccount  string          `json:"reward_account"`
	Destination    string          `json:"destination"`
}

// AttestationCreateAccountRequest is the account-create variant.
type AttestationCreateAccountRequest struct {
	Bridge         json.RawMessage `json:"bridge"`
	SendingAmount  json.RawMessage `json:"sending_amount"`
	RewardAmount   json.RawMessage `json:"reward_amount"`
	CreateCount    json.RawMessage `json:"create_count"`
	Door           string          `json:"door"`
	SendingAccount string          `json:"sending_account"`
	RewardAccount  string          `json:"reward_account"`
	Destination    string          `json:"destination"`
}

func missingField(name string) rpc.Error {
	return rpc.NewRPCError(rpc.DefaultErrorCode, "Missing or invalid field: "+name)
}

// deriveDirection recomputes the transfer direction from the door account;
// the request's word for it is never trusted.
func deriveDirection(bridge xchain.BridgeSpec, door xchain.AccountID) (xchain.Direction, rpc.Error) {
	if door == bridge.LockingChainDoor {
		return xchain.LockingToIssuing, nil
	}
	if door == bridge.IssuingChainDoor {
		return xchain.IssuingToLocking, nil
	}
	return 0, rpc.NewRPCError(rpc.DefaultErrorCode,
		"Specified door account does not match any bridge door account")
}

// Attestation serves the witness command: it returns this witness's stored
// signature for the quoted transfer as a single-element attestation batch.
func (w *WitnessEndpoints) Attestation(req AttestationRequest) (interface{}, rpc.Error) {
	ctx, cancel := context.WithTimeout(context.Background(), w.readTimeout)
	defer cancel()

	bridge, err := xchain.ParseBridgeJSON(req.Bridge)
	if err != nil {
		return nil, missingField("bridge")
	}
	sendingAmount, err := xchain.ParseAmountJSON(req.SendingAmount)
	if err != nil {
		return nil, missingField("sending_amount")
	}
	claimID, ok := xchain.ParseUint64JSON(req.ClaimID)
	if !ok {
		return nil, missingField("claim_id")
	}
	door, err := xchain.ParseAccountID(req.Door)
	if err != nil {
		return nil, missingField("door")
	}
	sendingAccount, err := xchain.ParseAccountID(req.SendingAccount)
	if err != nil {
		return nil, missingField("sending_account")
	}
	if _, err := xchain.ParseAccountID(req.RewardAccount); err != nil {
		return nil, missingField("reward_account")
	}
	var destination *xchain.AccountID
	if req.Destination != "" {
		acct, err := xchain.ParseAccountID(req.Destination)
		if err != nil {
			return nil, missingField("destination")
		}
		destination = &acct
	}

	dir, rpcErr := deriveDirection(bridge, door)
	if rpcErr != nil {
		return nil, rpcErr
	}

	var amtSer xchain.Serializer
	amtSer.WriteAmount(sendingAmount)
	query := attestationdb.ClaimQuery{
		ClaimID:        claimID,
		DeliveredAmt:   amtSer.Bytes(),
		Bridge:         bridge.Serialize(),
		SendingAccount: sendingAccount,
	}
	if destination != nil {
		query.OtherChainAccount = destination.Bytes()
	}

	row, err := w.store.GetClaim(ctx, dir, query)
	if err != nil {
		if !errors.Is(err, attestationdb.ErrNotFound) {
			w.logger.Errorf("witness lookup, dir %s claimID %d: %v", dir, claimID, err)
		}
		return nil, rpc.NewRPCError(rpc.DefaultErrorCode, noSuchTransaction)
	}

	claim := xchain.AttestationClaim{
		PublicKey:           row.PublicKey,
		Signature:           row.Signature,
		SendingAccount:      sendingAccount,
		SendingAmount:       sendingAmount,
		RewardAccount:       row.RewardAccount,
		WasLockingChainSend: dir.WasLockingChainSend(),
		ClaimID:             claimID,
		Destination:         destination,
	}
	batch := xchain.AttestationBatch{Bridge: bridge, Claims: []xchain.AttestationClaim{claim}}
	return map[string]interface{}{"XChainAttestationBatch": batch.ToJSON()}, nil
}

// AttestationCreateAccount serves the witness_account_create command.
func (w *WitnessEndpoints) AttestationCreateAccount(
	req AttestationCreateAccountRequest,
) (interface{}, rpc.Error) {
	ctx, cancel := context.WithTimeout(context.Background(), w.readTimeout)
	defer cancel()

	bridge, err := xchain.ParseBridgeJSON(req.Bridge)
	if err != nil {
		return nil, missingField("bridge")
	}
	sendingAmount, err := xchain.ParseAmountJSON(req.SendingAmount)
	if err != nil {
		return nil, missingField("sending_amount")
	}
	rewardAmount, err := xchain.ParseAmountJSON(req.RewardAmount)
	if err != nil {
		return nil, missingField("reward_amount")
	}
	createCount, ok := xchain.ParseUint64JSON(req.CreateCount)
	if !ok {
		return nil, missingField("create_count")
	}
	door, err := xchain.ParseAccountID(req.Door)
	if err != nil {
		return nil, missingField("door")
	}
	sendingAccount, err := xchain.ParseAccountID(req.SendingAccount)
	if err != nil {
		return nil, missingField("sending_account")
	}
	if _, err := xchain.ParseAccountID(req.RewardAccount); err != nil {
		return nil, missingField("reward_account")
	}
	destination, err := xchain.ParseAccountID(req.Destination)
	if err != nil {
		return nil, missingField("destination")
	}

	dir, rpcErr := deriveDirection(bridge, door)
	if rpcErr != nil {
		return nil, rpcErr
	}

	var amtSer, rewardSer xchain.Serializer
	amtSer.WriteAmount(sendingAmount)
	rewardSer.WriteAmount(rewardAmount)
	query := attestationdb.CreateAccountQuery{
		CreateCount:    createCount,
		DeliveredAmt:   amtSer.Bytes(),
		RewardAmt:      rewardSer.Bytes(),
		Bridge:         bridge.Serialize(),
		SendingAccount: sendingAccount,
		Destination:    destination.Bytes(),
	}

	row, err := w.store.GetCreateAccount(ctx, dir, query)
	if err != nil {
		if !errors.Is(err, attestationdb.ErrNotFound) {
			w.logger.Errorf("witness_account_create lookup, dir %s createCount %d: %v",
				dir, createCount, err)
		}
		return nil, rpc.NewRPCError(rpc.DefaultErrorCode, noSuchTransaction)
	}

	create := xchain.AttestationCreateAccount{
		PublicKey:           row.PublicKey,
		Signature:           row.Signature,
		SendingAccount:      sendingAccount,
		SendingAmount:       sendingAmount,
		RewardAmount:        rewardAmount,
		RewardAccount:       row.RewardAccount,
		WasLockingChainSend: dir.WasLockingChainSend(),
		CreateCount:         createCount,
		Destination:         destination,
	}
	batch := xchain.AttestationBatch{
		Bridge:         bridge,
		CreateAccounts: []xchain.AttestationCreateAccount{create},
	}
	return map[string]interface{}{"XChainAttestationBatch": batch.ToJSON()}, nil
}

// ServerInfo reports liveness.
func (w *WitnessEndpoints) ServerInfo() (interface{}, rpc.Error) {
	result := map[string]interface{}{"result": "normal"}
	if w.info != nil {
		result["info"] = w.info.GetInfo()
	}
	return result, nil
}

// Stop signals the daemon to terminate. Privileged.
func (w *WitnessEndpoints) Stop() (interface{}, rpc.Error) {
	w.logger.Info("stop requested over RPC")
	w.signalStop()
	return map[string]interface{}{"result": "stopping"}, nil
}
