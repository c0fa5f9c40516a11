package rest

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/propertydesk/groupqueue/pkg/utils"
	"github.com/propertydesk/groupqueue/queue/domain"
	"github.com/propertydesk/groupqueue/queue/usecase"
)

type Queue struct {
	Service    *usecase.PostQueueService
	Dispatcher *usecase.Dispatcher
}

func InitRestQueue(app fiber.Router, service *usecase.PostQueueService, dispatcher *usecase.Dispatcher) Queue {
	rest := Queue{Service: service, Dispatcher: dispatcher}
	app.Get("/queue/summary", rest.Summary)
	app.Get("/queue/items", rest.List)
	app.Get("/queue/items/:id", rest.Get)
	app.Post("/queue/items", rest.Submit)
	app.Post("/queue/dispatch", rest.Dispatch)
	app.Post("/queue/items/:id/requeue", rest.Requeue)
	return rest
}

func (controller *Queue) Summary(c *fiber.Ctx) error {
	summary, err := controller.Service.Summary(c.UserContext())
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Success fetch queue summary",
		Results: summary,
	})
}

func (controller *Queue) List(c *fiber.Ctx) error {
	status := c.Query("status")
	limit, _ := strconv.Atoi(c.Query("limit", "0"))

	items, err := controller.Service.ListItems(c.UserContext(), status, limit)
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Success fetch queue items",
		Results: items,
	})
}

func (controller *Queue) Get(c *fiber.Ctx) error {
	item, err := controller.Service.GetItem(c.UserContext(), c.Params("id"))
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Success fetch queue item",
		Results: item,
	})
}

func (controller *Queue) Submit(c *fiber.Ctx) error {
	var request domain.IntakeRequest
	err := c.BodyParser(&request)
	utils.PanicIfNeeded(err)

	item, err := controller.Service.Submit(c.UserContext(), request)
	utils.PanicIfNeeded(err)

	return c.Status(201).JSON(utils.ResponseData{
		Status:  201,
		Code:    "CREATED",
		Message: "Success enqueue group post",
		Results: item,
	})
}

func (controller *Queue) Dispatch(c *fiber.Ctx) error {
	var request domain.DispatchRequest
	if len(c.Body()) > 0 {
		err := c.BodyParser(&request)
		utils.PanicIfNeeded(err)
	}

	result, err := controller.Dispatcher.RunForcedCycle(c.UserContext(), request)
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Dispatch cycle completed",
		Results: result,
	})
}

func (controller *Queue) Requeue(c *fiber.Ctx) error {
	var request domain.RequeueRequest
	if len(c.Body()) > 0 {
		err := c.BodyParser(&request)
		utils.PanicIfNeeded(err)
	}

	item, err := controller.Service.RequeueItem(c.UserContext(), c.Params("id"), request)
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Success requeue item",
		Results: item,
	})
}
