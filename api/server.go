package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/julienschmidt/httprouter"

	"vcpsim/chargepoint"
	"vcpsim/config"
	"vcpsim/fleet"
	"vcpsim/internal"
	"vcpsim/ocpp/core"
	"vcpsim/simulator"
)

// Server is the thin HTTP binding of the fleet command interface. No logic
// lives here; every route delegates to the manager.
type Server struct {
	conf       *config.Config
	manager    *fleet.Manager
	httpServer *http.Server
	logger     internal.LogHandler
	database   *internal.MongoDB
}

// SetDatabase enables the traffic-log read endpoint.
func (s *Server) SetDatabase(database *internal.MongoDB) {
	s.database = database
}

func NewServer(conf *config.Config, manager *fleet.Manager, logger internal.LogHandler) *Server {
	s := &Server{conf: conf, manager: manager, logger: logger}
	router := httprouter.New()
	s.register(router)
	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf("%s:%s", conf.Listen.BindIP, conf.Listen.Port),
		Handler: router,
	}
	return s
}

func (s *Server) Start() error {
	s.logger.Debug("starting admin api on " + s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

func (s *Server) register(router *httprouter.Router) {
	router.GET("/api/chargers", s.listChargers)
	router.POST("/api/chargers", s.addCharger)
	router.GET("/api/chargers/:id", s.getCharger)
	router.DELETE("/api/chargers/:id", s.removeCharger)
	router.POST("/api/chargers/:id/connect", s.connect)
	router.POST("/api/chargers/:id/disconnect", s.disconnect)
	router.POST("/api/connect-all", s.connectAll)
	router.POST("/api/generate", s.generate)
	router.GET("/api/profiles", s.listProfiles)
	router.GET("/api/log", s.readLog)
	router.GET("/api/ws-url", s.getWsURL)
	router.PUT("/api/ws-url", s.setWsURL)
	router.POST("/api/chargers/:id/connectors/:connector/status", s.setStatus)
	router.POST("/api/chargers/:id/connectors/:connector/current", s.setCurrent)
	router.POST("/api/chargers/:id/connectors/:connector/transaction-id", s.setTransactionId)
	router.POST("/api/chargers/:id/connectors/:connector/start", s.startTransaction)
	router.POST("/api/chargers/:id/connectors/:connector/stop", s.stopTransaction)
	router.POST("/api/chargers/:id/connectors/:connector/reset-energy", s.resetEnergy)
	router.POST("/api/chargers/:id/connectors/:connector/plug", s.plugInCar)
	router.POST("/api/chargers/:id/connectors/:connector/unplug", s.unplugCar)
	router.GET("/api/chargers/:id/connectors/:connector/car", s.carStatus)
	router.POST("/api/bulk/status", s.bulkStatus)
	router.POST("/api/bulk/current", s.bulkCurrent)
	router.POST("/api/bulk/configuration", s.bulkConfiguration)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, fleet.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, fleet.ErrExists):
		status = http.StatusConflict
	case errors.Is(err, fleet.ErrInvalidArgument):
		status = http.StatusBadRequest
	}
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func decodeBody(r *http.Request, target interface{}) error {
	defer func() { _ = r.Body.Close() }()
	return json.NewDecoder(r.Body).Decode(target)
}

func connectorId(params httprouter.Params) (int, error) {
	return strconv.Atoi(params.ByName("connector"))
}

func (s *Server) listChargers(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	s.writeJSON(w, http.StatusOK, s.manager.List())
}

func (s *Server) getCharger(w http.ResponseWriter, _ *http.Request, params httprouter.Params) {
	view, err := s.manager.Get(params.ByName("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, view)
}

func (s *Server) addCharger(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var cfg chargepoint.ChargerConfig
	if err := decodeBody(r, &cfg); err != nil {
		s.writeError(w, fmt.Errorf("%w: %s", fleet.ErrInvalidArgument, err))
		return
	}
	if err := s.manager.Add(cfg); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]string{"cpId": cfg.CpId})
}

func (s *Server) removeCharger(w http.ResponseWriter, _ *http.Request, params httprouter.Params) {
	if err := s.manager.Remove(params.ByName("id")); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, nil)
}

func (s *Server) connect(w http.ResponseWriter, _ *http.Request, params httprouter.Params) {
	if err := s.manager.Connect(params.ByName("id")); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, nil)
}

func (s *Server) disconnect(w http.ResponseWriter, _ *http.Request, params httprouter.Params) {
	if err := s.manager.Disconnect(params.ByName("id")); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, nil)
}

func (s *Server) connectAll(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	s.writeJSON(w, http.StatusOK, s.manager.ConnectAll())
}

func (s *Server) generate(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var body struct {
		Prefix string                    `json:"prefix"`
		Count  int                       `json:"count"`
		Config chargepoint.ChargerConfig `json:"config"`
	}
	if err := decodeBody(r, &body); err != nil {
		s.writeError(w, fmt.Errorf("%w: %s", fleet.ErrInvalidArgument, err))
		return
	}
	created, err := s.manager.GenerateChargers(body.Prefix, body.Count, body.Config)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]interface{}{"created": created})
}

func (s *Server) listProfiles(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	s.writeJSON(w, http.StatusOK, simulator.ListProfiles())
}

func (s *Server) readLog(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if s.database == nil {
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "log database not configured"})
		return
	}
	limit := int64(100)
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.ParseInt(raw, 10, 64); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	messages, err := s.database.ReadLog(limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, messages)
}

func (s *Server) getWsURL(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	s.writeJSON(w, http.StatusOK, map[string]string{"url": s.manager.WsURL()})
}

func (s *Server) setWsURL(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var body struct {
		URL string `json:"url"`
	}
	if err := decodeBody(r, &body); err != nil {
		s.writeError(w, fmt.Errorf("%w: %s", fleet.ErrInvalidArgument, err))
		return
	}
	if err := s.manager.SetWsURL(body.URL); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, nil)
}

func (s *Server) setStatus(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	id, err := connectorId(params)
	if err != nil {
		s.writeError(w, fmt.Errorf("%w: %s", fleet.ErrInvalidArgument, err))
		return
	}
	var body struct {
		Status    string `json:"status"`
		ErrorCode string `json:"errorCode"`
	}
	if err = decodeBody(r, &body); err != nil {
		s.writeError(w, fmt.Errorf("%w: %s", fleet.ErrInvalidArgument, err))
		return
	}
	err = s.manager.SetConnectorStatus(params.ByName("id"), id,
		core.ChargePointStatus(body.Status), core.ChargePointErrorCode(body.ErrorCode))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, nil)
}

func (s *Server) setCurrent(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	id, err := connectorId(params)
	if err != nil {
		s.writeError(w, fmt.Errorf("%w: %s", fleet.ErrInvalidArgument, err))
		return
	}
	var body struct {
		Amps float64 `json:"amps"`
	}
	if err = decodeBody(r, &body); err != nil {
		s.writeError(w, fmt.Errorf("%w: %s", fleet.ErrInvalidArgument, err))
		return
	}
	if err = s.manager.SetChargingCurrent(params.ByName("id"), id, body.Amps); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, nil)
}

func (s *Server) setTransactionId(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	id, err := connectorId(params)
	if err != nil {
		s.writeError(w, fmt.Errorf("%w: %s", fleet.ErrInvalidArgument, err))
		return
	}
	var body struct {
		TransactionId *int `json:"transactionId"`
	}
	if err = decodeBody(r, &body); err != nil {
		s.writeError(w, fmt.Errorf("%w: %s", fleet.ErrInvalidArgument, err))
		return
	}
	if err = s.manager.SetTransactionId(params.ByName("id"), id, body.TransactionId); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, nil)
}

func (s *Server) startTransaction(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	id, err := connectorId(params)
	if err != nil {
		s.writeError(w, fmt.Errorf("%w: %s", fleet.ErrInvalidArgument, err))
		return
	}
	var body struct {
		IdTag string `json:"idTag"`
	}
	_ = decodeBody(r, &body)
	if err = s.manager.StartTransaction(params.ByName("id"), id, body.IdTag); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, nil)
}

func (s *Server) stopTransaction(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	id, err := connectorId(params)
	if err != nil {
		s.writeError(w, fmt.Errorf("%w: %s", fleet.ErrInvalidArgument, err))
		return
	}
	var body struct {
		Reason string `json:"reason"`
	}
	_ = decodeBody(r, &body)
	if err = s.manager.StopTransaction(params.ByName("id"), id, core.Reason(body.Reason)); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, nil)
}

func (s *Server) resetEnergy(w http.ResponseWriter, _ *http.Request, params httprouter.Params) {
	id, err := connectorId(params)
	if err != nil {
		s.writeError(w, fmt.Errorf("%w: %s", fleet.ErrInvalidArgument, err))
		return
	}
	if err = s.manager.ResetEnergy(params.ByName("id"), id); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, nil)
}

func (s *Server) plugInCar(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	id, err := connectorId(params)
	if err != nil {
		s.writeError(w, fmt.Errorf("%w: %s", fleet.ErrInvalidArgument, err))
		return
	}
	var body struct {
		ProfileId  string  `json:"profileId"`
		InitialSoc float64 `json:"initialSoc"`
	}
	if err = decodeBody(r, &body); err != nil {
		s.writeError(w, fmt.Errorf("%w: %s", fleet.ErrInvalidArgument, err))
		return
	}
	if err = s.manager.PlugInCar(params.ByName("id"), id, body.ProfileId, body.InitialSoc); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, nil)
}

func (s *Server) unplugCar(w http.ResponseWriter, _ *http.Request, params httprouter.Params) {
	id, err := connectorId(params)
	if err != nil {
		s.writeError(w, fmt.Errorf("%w: %s", fleet.ErrInvalidArgument, err))
		return
	}
	if err = s.manager.UnplugCar(params.ByName("id"), id); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, nil)
}

func (s *Server) carStatus(w http.ResponseWriter, _ *http.Request, params httprouter.Params) {
	id, err := connectorId(params)
	if err != nil {
		s.writeError(w, fmt.Errorf("%w: %s", fleet.ErrInvalidArgument, err))
		return
	}
	status, err := s.manager.CarStatus(params.ByName("id"), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, status)
}

func (s *Server) bulkStatus(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var body struct {
		CpIds       []string `json:"cpIds"`
		ConnectorId int      `json:"connectorId"`
		Status      string   `json:"status"`
		ErrorCode   string   `json:"errorCode"`
	}
	if err := decodeBody(r, &body); err != nil {
		s.writeError(w, fmt.Errorf("%w: %s", fleet.ErrInvalidArgument, err))
		return
	}
	s.writeJSON(w, http.StatusOK, s.manager.BulkSetConnectorStatus(body.CpIds, body.ConnectorId,
		core.ChargePointStatus(body.Status), core.ChargePointErrorCode(body.ErrorCode)))
}

func (s *Server) bulkCurrent(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var body struct {
		CpIds       []string `json:"cpIds"`
		ConnectorId int      `json:"connectorId"`
		Amps        float64  `json:"amps"`
	}
	if err := decodeBody(r, &body); err != nil {
		s.writeError(w, fmt.Errorf("%w: %s", fleet.ErrInvalidArgument, err))
		return
	}
	s.writeJSON(w, http.StatusOK, s.manager.BulkSetChargingCurrent(body.CpIds, body.ConnectorId, body.Amps))
}

func (s *Server) bulkConfiguration(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var body struct {
		CpIds []string `json:"cpIds"`
		Key   string   `json:"key"`
		Value string   `json:"value"`
	}
	if err := decodeBody(r, &body); err != nil {
		s.writeError(w, fmt.Errorf("%w: %s", fleet.ErrInvalidArgument, err))
		return
	}
	s.writeJSON(w, http.StatusOK, s.manager.BulkChangeConfiguration(body.CpIds, body.Key, body.Value))
}
