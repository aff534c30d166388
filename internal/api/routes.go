package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/akriventsev/commerce/internal/inventory"
	"github.com/akriventsev/commerce/internal/location"
	"github.com/akriventsev/commerce/internal/order"
	"github.com/akriventsev/commerce/internal/product"
	"github.com/akriventsev/commerce/internal/seller"
)

func (r *Router) productRoutes(g *gin.RouterGroup) {
	g.POST("/products", func(c *gin.Context) {
		var cmd product.CreateProductCommand
		if err := c.ShouldBindJSON(&cmd); err != nil {
			badRequest(c, err)
			return
		}
		r.dispatch(c, cmd, http.StatusCreated)
	})
	g.GET("/products/:id", func(c *gin.Context) {
		r.ask(c, product.ProductQuery{ID: c.Param("id")})
	})
	g.DELETE("/products/:id", func(c *gin.Context) {
		r.dispatch(c, product.DeleteProductCommand{ID: c.Param("id")}, http.StatusOK)
	})
	g.GET("/sellers/:id/products", func(c *gin.Context) {
		r.ask(c, product.ProductsBySellerQuery{SellerID: c.Param("id")})
	})

	g.PUT("/products/:id/inventory", func(c *gin.Context) {
		var cmd inventory.SetInventoryCommand
		if err := c.ShouldBindJSON(&cmd); err != nil {
			badRequest(c, err)
			return
		}
		cmd.ProductID = c.Param("id")
		r.dispatch(c, cmd, http.StatusOK)
	})
	g.GET("/products/:id/inventory", func(c *gin.Context) {
		r.ask(c, inventory.InventoryQuery{ProductID: c.Param("id")})
	})
	g.DELETE("/products/:id/inventory", func(c *gin.Context) {
		r.dispatch(c, inventory.DeleteInventoryCommand{ID: c.Param("id")}, http.StatusOK)
	})
}

func (r *Router) orderRoutes(g *gin.RouterGroup) {
	g.POST("/orders", func(c *gin.Context) {
		var cmd order.CreateOrderCommand
		if err := c.ShouldBindJSON(&cmd); err != nil {
			badRequest(c, err)
			return
		}
		r.dispatch(c, cmd, http.StatusCreated)
	})
	g.GET("/orders/:id", func(c *gin.Context) {
		r.ask(c, order.OrderQuery{ID: c.Param("id")})
	})
	g.DELETE("/orders/:id", func(c *gin.Context) {
		r.dispatch(c, order.DeleteOrderCommand{ID: c.Param("id")}, http.StatusOK)
	})
	g.GET("/users/:userId/orders", func(c *gin.Context) {
		r.ask(c, order.OrdersByUserQuery{UserID: c.Param("userId")})
	})
}

func (r *Router) locationRoutes(g *gin.RouterGroup) {
	g.POST("/users/:userId/locations", func(c *gin.Context) {
		var cmd location.SaveLocationCommand
		if err := c.ShouldBindJSON(&cmd); err != nil {
			badRequest(c, err)
			return
		}
		cmd.UserID = c.Param("userId")
		r.dispatch(c, cmd, http.StatusCreated)
	})
	g.GET("/users/:userId/locations", func(c *gin.Context) {
		r.ask(c, location.UserLocationsQuery{UserID: c.Param("userId")})
	})
	g.GET("/users/:userId/locations/current", func(c *gin.Context) {
		r.ask(c, location.CurrentLocationQuery{UserID: c.Param("userId")})
	})
	g.DELETE("/users/:userId/locations", func(c *gin.Context) {
		r.dispatch(c, location.DeleteUserLocationsCommand{UserID: c.Param("userId")}, http.StatusOK)
	})
}

func (r *Router) sellerRoutes(g *gin.RouterGroup) {
	g.POST("/sellers", func(c *gin.Context) {
		var cmd seller.RegisterSellerCommand
		if err := c.ShouldBindJSON(&cmd); err != nil {
			badRequest(c, err)
			return
		}
		r.dispatch(c, cmd, http.StatusCreated)
	})
	g.GET("/sellers/:id", func(c *gin.Context) {
		r.ask(c, seller.SellerQuery{ID: c.Param("id")})
	})
}
