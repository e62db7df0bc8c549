package router

import (
	"github.com/JonasKairys/EduTeka/app/controllers"
	"github.com/JonasKairys/EduTeka/internal/pkg/constants"
	"github.com/gofiber/fiber/v2"
)

type HttpRouter struct {
}

func NewHttpRouter() *HttpRouter {
	return &HttpRouter{}
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	// Initialize payment controller with the gateway client
	if err := controllers.InitializePaymentController(); err != nil {
		panic(err)
	}

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	app.Post(constants.CheckoutRoute, controllers.HandleCheckout)

	// Provider-facing callback plus browser return targets
	app.Get(constants.PaymentCallbackRoute, controllers.HandlePaymentCallback)
	app.Get(constants.PaymentAcceptRoute, controllers.HandlePaymentAccept)
	app.Get(constants.PaymentCancelRoute, controllers.HandlePaymentCancel)
}

// InstallRouter installs all application routes.
func InstallRouter(app *fiber.App) {
	NewHttpRouter().InstallRouter(app)
}
