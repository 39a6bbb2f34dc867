package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/warlockedward/AI-Bid-Assistant-sub001/id"
)

// streamEvents serves the execution's live event feed as Server-Sent
// Events. The subscription is credit-limited; a client that cannot keep
// up loses events rather than stalling the publisher.
func (a *API) streamEvents(c echo.Context) error {
	execID, err := id.ParseExecutionID(c.Param("execId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid execution ID: "+err.Error())
	}

	// Ownership check before exposing the feed.
	if _, err := a.eng.Orchestrator().Status(c.Request().Context(), execID); err != nil {
		return httpError(err)
	}

	sub := a.eng.States().Subscribe(execID)
	defer a.eng.States().Unsubscribe(sub)

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set(echo.HeaderCacheControl, "no-cache")
	res.Header().Set(echo.HeaderConnection, "keep-alive")
	res.WriteHeader(http.StatusOK)
	res.Flush()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case evt, ok := <-sub.C():
			if !ok {
				return nil
			}
			payload, marshalErr := json.Marshal(evt)
			if marshalErr != nil {
				a.logger.Warn("encode stream event", "error", marshalErr)
				continue
			}
			if _, writeErr := fmt.Fprintf(res, "event: %s\ndata: %s\n\n", evt.Type, payload); writeErr != nil {
				return nil
			}
			res.Flush()
		}
	}
}
