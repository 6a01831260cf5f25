// Package statusapi is a read-only HTTP view of the swaps a swapd instance
// is driving. It fetches state from the in-process swap registry and
// publishes it on gin routes, following the shape of the teacher's
// reporter.HttpReporter (route constants, SetupRouter/Run, gin.H handlers).
package statusapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/BeamMW/btc-swap-driver/atomicswap"
	btcutils "github.com/BeamMW/btc-swap-driver/btcman/utils"
	"github.com/BeamMW/btc-swap-driver/common"
	"github.com/BeamMW/btc-swap-driver/swapstore"
)

const (
	RouteHello = "/hello"
	RouteSwaps = "/swaps"
	RouteSwap  = "/swaps/:id"
)

// Registry is the upstream data source: cmd/swapd's live swap table.
// Implementations must return a stable snapshot safe to range over
// concurrently with swapd's own ticker goroutine mutating the underlying set.
type Registry interface {
	Swaps() map[string]*atomicswap.Driver
}

// Server is a http type of reporter over a swap Registry.
type Server struct {
	serverIP   string
	serverPort string
	registry   Registry
}

func NewServer(serverIP, serverPort string, registry Registry) *Server {
	return &Server{
		serverIP:   serverIP,
		serverPort: serverPort,
		registry:   registry,
	}
}

// Hook up routes & handlers
func (s *Server) SetupRouter() *gin.Engine {
	router := gin.Default()

	router.GET(RouteHello, Hello)
	router.GET(RouteSwaps, s.listSwaps)
	router.GET(RouteSwap, s.swapStatus)

	return router
}

// Hook up router & ip:port
func (s *Server) Run() {
	router := s.SetupRouter()
	address := s.serverIP + ":" + s.serverPort
	if err := router.Run(address); err != nil {
		panic(err)
	}
}

// Example route.
func Hello(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "btc-swap-driver status api",
	})
}

func (s *Server) listSwaps(c *gin.Context) {
	drivers := s.registry.Swaps()
	ids := make([]string, 0, len(drivers))
	for id := range drivers {
		ids = append(ids, id)
	}
	c.JSON(http.StatusOK, gin.H{"swaps": ids})
}

// subTxIds is the fixed set of Bitcoin-side sub-transactions reported per
// swap; BeamRedeemTx carries no state of its own (it namespaces PreImage).
var subTxIds = []swapstore.SubTxId{swapstore.LockTx, swapstore.RefundTx, swapstore.RedeemTx}

func (s *Server) swapStatus(c *gin.Context) {
	id := c.Param("id")

	driver, ok := s.registry.Swaps()[id]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "swap not found"})
		return
	}

	if err := driver.Err(); err != nil {
		c.JSON(http.StatusOK, gin.H{
			"swap_id": id,
			"failed":  true,
			"error":   err.Error(),
		})
		return
	}

	subTxStates := gin.H{}
	for _, subTxId := range subTxIds {
		state, err := driver.SubTxState(subTxId)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		entry := gin.H{"state": state.String()}
		if txid, ok, err := driver.TxID(subTxId); err == nil && ok {
			entry["txid"] = common.Shorten(txid, 6)
		}
		subTxStates[subTxId.String()] = entry
	}

	resp := gin.H{
		"swap_id":       id,
		"failed":        false,
		"sub_tx_states": subTxStates,
	}
	if amount, err := driver.Amount(); err == nil {
		resp["amount_sat"] = amount
		resp["amount_btc"] = btcutils.SatoshiToBtc(amount)
	}

	c.JSON(http.StatusOK, resp)
}
