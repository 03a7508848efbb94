package handler

import (
    "context"
    "net/http"
    "time"

    "github.com/labstack/echo/v4"
)

// Pinger reports database reachability. *sql.DB satisfies it.
type Pinger interface {
    PingContext(ctx context.Context) error
}

// Health reports liveness and the database connection state. It always
// answers 200 so the frontend can show the state; db_state carries the
// detail.
func Health(db Pinger) echo.HandlerFunc {
    return func(c echo.Context) error {
        state := "memory"
        if db != nil {
            ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
            defer cancel()
            state = "connected"
            if err := db.PingContext(ctx); err != nil {
                state = "disconnected"
            }
        }
        return c.JSON(http.StatusOK, echo.Map{
            "success":   true,
            "status":    "OK",
            "timestamp": time.Now().UTC().Format(time.RFC3339),
            "db_state":  state,
        })
    }
}
