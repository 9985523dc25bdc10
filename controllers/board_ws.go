package controller

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/sirupsen/logrus"

	"taskflow/middleware"
	"taskflow/realtime"
	"taskflow/services"
	"taskflow/utils"
)

const (
	boardProjectLocal = "board_project_id"
	boardPingInterval = 30 * time.Second
	boardWriteTimeout = 10 * time.Second
)

// BoardController streams live board events of one project over a websocket.
type BoardController struct {
	Projects *services.ProjectService
	Hub      *realtime.Hub
	Logger   *logrus.Entry
}

func NewBoardController(projects *services.ProjectService, hub *realtime.Hub, logger *logrus.Entry) *BoardController {
	return &BoardController{Projects: projects, Hub: hub, Logger: logger.WithField("component", "board_ws")}
}

// Authorize runs before the upgrade: only readers of the project may subscribe.
func (bc *BoardController) Authorize(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return utils.ErrorResponse(c, fiber.StatusUpgradeRequired, "Websocket upgrade required", nil)
	}
	id, ok, err := paramID(c, "id")
	if !ok {
		return err
	}
	if _, err := bc.Projects.Get(c.UserContext(), middleware.Principal(c), id); err != nil {
		return respondError(c, bc.Logger, err)
	}
	c.Locals(boardProjectLocal, id)
	return c.Next()
}

// Stream forwards hub events as JSON until the client goes away.
func (bc *BoardController) Stream(conn *websocket.Conn) {
	defer conn.Close()

	projectID, _ := conn.Locals(boardProjectLocal).(uint)
	userID, _ := conn.Locals("userID").(uint)
	subID, events := bc.Hub.Subscribe(projectID, userID)
	defer bc.Hub.Unsubscribe(projectID, subID)

	log := bc.Logger.WithFields(logrus.Fields{
		"project_id":    projectID,
		"user_id":       userID,
		"subscriber_id": subID,
	})
	log.Info("Board subscriber connected")

	// The reader only notices the close frame
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(boardPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			log.Info("Board subscriber disconnected")
			return
		case ev, ok := <-events:
			if !ok {
				log.Info("Board subscription closed")
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "access revoked"))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(boardWriteTimeout))
			if err := conn.WriteJSON(ev); err != nil {
				log.WithError(err).Warn("Error writing board event")
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(boardWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
