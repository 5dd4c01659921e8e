package httpsrv

import (
	"net/http"

	"github.com/hashmap-kz/pgswitch/internal/httpsrv/httputils"
)

type Controller struct {
	Service Service
}

func NewController(s Service) *Controller {
	return &Controller{Service: s}
}

func (c *Controller) StatusHandler(w http.ResponseWriter, _ *http.Request) {
	httputils.WriteJSON(w, http.StatusOK, c.Service.Status())
}
