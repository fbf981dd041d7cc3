package api

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/nodestake/staking-ledger/internal/db"
	"github.com/nodestake/staking-ledger/internal/db/model"
	"github.com/nodestake/staking-ledger/internal/pda"
	"github.com/nodestake/staking-ledger/internal/services"
	"github.com/nodestake/staking-ledger/internal/types"
	"github.com/nodestake/staking-ledger/pkg"
)

type Handlers struct {
	service  *services.Service
	validate *validator.Validate
}

func NewHandlers(service *services.Service) *Handlers {
	validate := validator.New()
	_ = validate.RegisterValidation("ledgeraddr", func(fl validator.FieldLevel) bool {
		return pkg.ValidateLedgerAddress(fl.Field().String()) == nil
	})
	return &Handlers{
		service:  service,
		validate: validate,
	}
}

type AddServerRequest struct {
	ServerKey string `json:"serverKey" validate:"required,hexadecimal"`
	Name      string `json:"name"`
	Amount    uint64 `json:"amount"`
	Mint      string `json:"mint,omitempty" validate:"omitempty,ledgeraddr"`
}

type UpdateServerRequest struct {
	ServerKey string `json:"serverKey" validate:"required,hexadecimal"`
	Name      string `json:"name"`
}

type ServerAmountRequest struct {
	ServerKey string `json:"serverKey" validate:"required,hexadecimal"`
	Amount    uint64 `json:"amount"`
	Mint      string `json:"mint,omitempty" validate:"omitempty,ledgeraddr"`
}

type RemoveServerRequest struct {
	ServerKey string `json:"serverKey" validate:"required,hexadecimal"`
	Mint      string `json:"mint,omitempty" validate:"omitempty,ledgeraddr"`
}

type DelegationAmountRequest struct {
	Server string `json:"server" validate:"required,ledgeraddr"`
	Amount uint64 `json:"amount"`
	Mint   string `json:"mint,omitempty" validate:"omitempty,ledgeraddr"`
}

type RemoveDelegationRequest struct {
	Server string `json:"server" validate:"required,ledgeraddr"`
	Mint   string `json:"mint,omitempty" validate:"omitempty,ledgeraddr"`
}

type MintRequest struct {
	Recipient string `json:"recipient" validate:"required,ledgeraddr"`
	Amount    uint64 `json:"amount" validate:"gt=0"`
}

type ServerResponse struct {
	Address         string `json:"address"`
	Owner           string `json:"owner"`
	Name            string `json:"name"`
	ServerKey       string `json:"serverKey"`
	Stake           uint64 `json:"stake"`
	Total           uint64 `json:"total"`
	TotalDelegators uint32 `json:"totalDelegators"`
	Vault           string `json:"vault"`
	Incarnation     uint64 `json:"incarnation"`
	CreatedAt       int64  `json:"createdAt"`
	UpdatedAt       int64  `json:"updatedAt"`
}

type DelegationResponse struct {
	Address   string `json:"address"`
	Owner     string `json:"owner"`
	Server    string `json:"server"`
	Stake     uint64 `json:"stake"`
	Vault     string `json:"vault"`
	CreatedAt int64  `json:"createdAt"`
	UpdatedAt int64  `json:"updatedAt"`
}

type RegistryResponse struct {
	Address       string `json:"address"`
	Admin         string `json:"admin"`
	TotalStake    uint64 `json:"totalStake"`
	TotalUsers    uint32 `json:"totalUsers"`
	InitializedAt int64  `json:"initializedAt"`
}

type BalanceResponse struct {
	Owner   string `json:"owner"`
	Mint    string `json:"mint"`
	Balance uint64 `json:"balance"`
	Display string `json:"display"`
}

type StatsResponse struct {
	ServerCount     uint64   `json:"serverCount"`
	DelegationCount uint64   `json:"delegationCount"`
	ServerStake     uint64   `json:"serverStake"`
	DelegatedStake  uint64   `json:"delegatedStake"`
	TotalStake      uint64   `json:"totalStake"`
	TotalUsers      uint32   `json:"totalUsers"`
	Consistent      bool     `json:"consistent"`
	Violations      []string `json:"violations,omitempty"`
	LastUpdated     int64    `json:"lastUpdated"`
}

type OperationResponse struct {
	Operation string `json:"operation"`
	Address   string `json:"address,omitempty"`
}

func toServerResponse(doc *model.ServerDocument) ServerResponse {
	return ServerResponse{
		Address:         doc.Address,
		Owner:           doc.Owner,
		Name:            doc.Name,
		ServerKey:       hex.EncodeToString(doc.ServerKey),
		Stake:           doc.Stake,
		Total:           doc.Total,
		TotalDelegators: doc.TotalDelegators,
		Vault:           doc.Vault,
		Incarnation:     doc.Incarnation,
		CreatedAt:       doc.CreatedAt,
		UpdatedAt:       doc.UpdatedAt,
	}
}

func toDelegationResponse(doc *model.DelegationDocument) DelegationResponse {
	return DelegationResponse{
		Address:   doc.Address,
		Owner:     doc.Owner,
		Server:    doc.Server,
		Stake:     doc.Stake,
		Vault:     doc.Vault,
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}
}

// decode reads and validates a json request body
func (h *Handlers) decode(r *http.Request, out any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		return types.NewValidationFailedError(fmt.Errorf("invalid request body: %w", err))
	}
	if err := h.validate.Struct(out); err != nil {
		return types.NewValidationFailedError(err)
	}
	return nil
}

func (h *Handlers) invocation(r *http.Request, mint string) (services.Invocation, error) {
	signed, ok := signedFromContext(r.Context())
	if !ok {
		return services.Invocation{}, types.NewErrorWithMsg(http.StatusUnauthorized, types.Unauthenticated, "unsigned request")
	}
	inv := services.Invocation{Caller: signed.caller, Mint: h.service.Mint(), Nonce: signed.nonce}
	if mint != "" {
		parsed, err := pda.ParseAddress(mint)
		if err != nil {
			return services.Invocation{}, types.NewValidationFailedError(fmt.Errorf("invalid mint: %w", err))
		}
		inv.Mint = parsed
	}
	return inv, nil
}

func parseServerKey(s string) ([]byte, error) {
	key, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return nil, types.NewValidationFailedError(fmt.Errorf("invalid serverKey: %w", err))
	}
	return key, nil
}

func parseAddress(field, s string) (pda.Address, error) {
	address, err := pda.ParseAddress(s)
	if err != nil {
		return pda.Address{}, types.NewValidationFailedError(fmt.Errorf("invalid %s: %w", field, err))
	}
	return address, nil
}

func (h *Handlers) Initialize(w http.ResponseWriter, r *http.Request) {
	inv, err := h.invocation(r, "")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.service.Initialize(r.Context(), inv); err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, OperationResponse{Operation: services.OpInitialize})
}

func (h *Handlers) AddServer(w http.ResponseWriter, r *http.Request) {
	var req AddServerRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	key, err := parseServerKey(req.ServerKey)
	if err != nil {
		writeError(w, r, err)
		return
	}
	inv, err := h.invocation(r, req.Mint)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.service.AddServer(r.Context(), inv, key, req.Name, req.Amount); err != nil {
		writeError(w, r, err)
		return
	}
	h.writeServerOperation(w, r, services.OpAddServer, inv.Caller, key)
}

func (h *Handlers) UpdateServer(w http.ResponseWriter, r *http.Request) {
	var req UpdateServerRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	key, err := parseServerKey(req.ServerKey)
	if err != nil {
		writeError(w, r, err)
		return
	}
	inv, err := h.invocation(r, "")
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.service.UpdateServer(r.Context(), inv, key, req.Name); err != nil {
		writeError(w, r, err)
		return
	}
	h.writeServerOperation(w, r, services.OpUpdateServer, inv.Caller, key)
}

func (h *Handlers) RemoveServer(w http.ResponseWriter, r *http.Request) {
	var req RemoveServerRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	key, err := parseServerKey(req.ServerKey)
	if err != nil {
		writeError(w, r, err)
		return
	}
	inv, err := h.invocation(r, req.Mint)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.service.RemoveServer(r.Context(), inv, key); err != nil {
		writeError(w, r, err)
		return
	}
	h.writeServerOperation(w, r, services.OpRemoveServer, inv.Caller, key)
}

func (h *Handlers) Deposit(w http.ResponseWriter, r *http.Request) {
	h.serverAmount(w, r, services.OpDeposit, h.service.Deposit)
}

func (h *Handlers) Withdraw(w http.ResponseWriter, r *http.Request) {
	h.serverAmount(w, r, services.OpWithdraw, h.service.Withdraw)
}

func (h *Handlers) serverAmount(
	w http.ResponseWriter, r *http.Request, operation string,
	apply func(ctx context.Context, inv services.Invocation, serverKey []byte, amount uint64) error,
) {
	var req ServerAmountRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	key, err := parseServerKey(req.ServerKey)
	if err != nil {
		writeError(w, r, err)
		return
	}
	inv, err := h.invocation(r, req.Mint)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := apply(r.Context(), inv, key, req.Amount); err != nil {
		writeError(w, r, err)
		return
	}
	h.writeServerOperation(w, r, operation, inv.Caller, key)
}

func (h *Handlers) writeServerOperation(w http.ResponseWriter, r *http.Request, operation string, owner pda.Address, key []byte) {
	address, err := h.service.ServerAddress(owner, key)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, OperationResponse{Operation: operation, Address: address.String()})
}

func (h *Handlers) DelegatedDeposit(w http.ResponseWriter, r *http.Request) {
	h.delegationAmount(w, r, services.OpDelegatedDeposit, h.service.DelegatedDeposit)
}

func (h *Handlers) DelegatedWithdraw(w http.ResponseWriter, r *http.Request) {
	h.delegationAmount(w, r, services.OpDelegatedWithdraw, h.service.DelegatedWithdraw)
}

func (h *Handlers) delegationAmount(
	w http.ResponseWriter, r *http.Request, operation string,
	apply func(ctx context.Context, inv services.Invocation, server pda.Address, amount uint64) error,
) {
	var req DelegationAmountRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	server, err := parseAddress("server", req.Server)
	if err != nil {
		writeError(w, r, err)
		return
	}
	inv, err := h.invocation(r, req.Mint)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := apply(r.Context(), inv, server, req.Amount); err != nil {
		writeError(w, r, err)
		return
	}
	h.writeDelegationOperation(w, r, operation, inv.Caller, server)
}

func (h *Handlers) RemoveDelegation(w http.ResponseWriter, r *http.Request) {
	var req RemoveDelegationRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	server, err := parseAddress("server", req.Server)
	if err != nil {
		writeError(w, r, err)
		return
	}
	inv, err := h.invocation(r, req.Mint)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.service.RemoveDelegation(r.Context(), inv, server); err != nil {
		writeError(w, r, err)
		return
	}
	h.writeDelegationOperation(w, r, services.OpRemoveDelegation, inv.Caller, server)
}

func (h *Handlers) writeDelegationOperation(w http.ResponseWriter, r *http.Request, operation string, delegator, server pda.Address) {
	address, err := h.service.DelegationAddress(delegator, server)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, OperationResponse{Operation: operation, Address: address.String()})
}

func (h *Handlers) MintTokens(w http.ResponseWriter, r *http.Request) {
	var req MintRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	recipient, err := parseAddress("recipient", req.Recipient)
	if err != nil {
		writeError(w, r, err)
		return
	}
	inv, err := h.invocation(r, "")
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.service.MintTokens(r.Context(), pda.Wallet(inv.Caller), inv.Nonce, recipient, req.Amount); err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, OperationResponse{Operation: services.OpMintTokens, Address: recipient.String()})
}

func (h *Handlers) GetRegistry(w http.ResponseWriter, r *http.Request) {
	registry, err := h.service.GetRegistry(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, RegistryResponse{
		Address:       registry.Address,
		Admin:         registry.Admin,
		TotalStake:    registry.TotalStake,
		TotalUsers:    registry.TotalUsers,
		InitializedAt: registry.InitializedAt,
	})
}

func (h *Handlers) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.GetLedgerStats(r.Context())
	if err != nil {
		writeError(w, r, notFoundAs(err, "ledger stats not computed yet"))
		return
	}
	writeData(w, http.StatusOK, StatsResponse{
		ServerCount:     stats.ServerCount,
		DelegationCount: stats.DelegationCount,
		ServerStake:     stats.ServerStake,
		DelegatedStake:  stats.DelegatedStake,
		TotalStake:      stats.RegistryTotalStake,
		TotalUsers:      stats.RegistryTotalUsers,
		Consistent:      stats.Consistent,
		Violations:      stats.Violations,
		LastUpdated:     stats.LastUpdated,
	})
}

func (h *Handlers) ListServers(w http.ResponseWriter, r *http.Request) {
	var owner pda.Address
	if s := r.URL.Query().Get("owner"); s != "" {
		var err error
		if owner, err = parseAddress("owner", s); err != nil {
			writeError(w, r, err)
			return
		}
	}

	servers, err := h.service.ListServers(r.Context(), owner)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]ServerResponse, 0, len(servers))
	for _, s := range servers {
		out = append(out, toServerResponse(s))
	}
	writeData(w, http.StatusOK, out)
}

func (h *Handlers) GetServer(w http.ResponseWriter, r *http.Request) {
	address, err := parseAddress("address", chi.URLParam(r, "address"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	server, err := h.service.GetServer(r.Context(), address)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, toServerResponse(server))
}

func (h *Handlers) ListServerDelegations(w http.ResponseWriter, r *http.Request) {
	address, err := parseAddress("address", chi.URLParam(r, "address"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	delegations, err := h.service.ListDelegationsByServer(r.Context(), address)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeDelegations(w, delegations)
}

func (h *Handlers) ListDelegations(w http.ResponseWriter, r *http.Request) {
	owner, err := parseAddress("owner", r.URL.Query().Get("owner"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	delegations, err := h.service.ListDelegationsByOwner(r.Context(), owner)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeDelegations(w, delegations)
}

func writeDelegations(w http.ResponseWriter, delegations []*model.DelegationDocument) {
	out := make([]DelegationResponse, 0, len(delegations))
	for _, d := range delegations {
		out = append(out, toDelegationResponse(d))
	}
	writeData(w, http.StatusOK, out)
}

func (h *Handlers) GetDelegation(w http.ResponseWriter, r *http.Request) {
	address, err := parseAddress("address", chi.URLParam(r, "address"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	delegation, err := h.service.GetDelegation(r.Context(), address)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, toDelegationResponse(delegation))
}

func (h *Handlers) GetBalance(w http.ResponseWriter, r *http.Request) {
	owner, err := parseAddress("owner", chi.URLParam(r, "owner"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	balance, err := h.service.Balance(r.Context(), owner)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, BalanceResponse{
		Owner:   owner.String(),
		Mint:    h.service.Mint().String(),
		Balance: balance,
		Display: types.FormatAmount(balance),
	})
}

func notFoundAs(err error, msg string) error {
	if db.IsNotFoundError(err) {
		return types.NewErrorWithMsg(http.StatusNotFound, types.NotFound, msg)
	}
	return err
}

func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Ping(r.Context()); err != nil {
		writeError(w, r, types.NewErrorWithMsg(http.StatusServiceUnavailable, types.InternalServiceError, "store unreachable"))
		return
	}
	writeData(w, http.StatusOK, "ok")
}
