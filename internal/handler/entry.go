package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/address-book/internal/apperr"
	"github.com/iliyamo/address-book/internal/middleware"
	"github.com/iliyamo/address-book/internal/service"
)

// EntryHandler serves the /api/entries routes.
type EntryHandler struct {
	Entries        *service.EntryService
	Transfer       *service.TransferService
	MaxImportBytes int64
}

func NewEntryHandler(entries *service.EntryService, transfer *service.TransferService, maxImportBytes int64) *EntryHandler {
	if maxImportBytes <= 0 {
		maxImportBytes = service.DefaultImportMaxBytes
	}
	return &EntryHandler{Entries: entries, Transfer: transfer, MaxImportBytes: maxImportBytes}
}

func (h *EntryHandler) Create(c echo.Context) error {
	u, _ := middleware.CurrentUser(c)
	var in service.EntryInput
	if err := c.Bind(&in); err != nil {
		return apperr.Validation("Invalid request body.")
	}
	e, err := h.Entries.Create(c.Request().Context(), *u, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, echo.Map{"success": true, "message": "Entry created successfully.", "data": e})
}

// Query lists entries with search, paging and sorting from the query
// string. Malformed numbers fall back to the defaults.
func (h *EntryHandler) Query(c echo.Context) error {
	page, _ := strconv.Atoi(c.QueryParam("page"))
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	res, err := h.Entries.Search(c.Request().Context(), service.SearchParams{
		Search:    c.QueryParam("search"),
		Page:      page,
		Limit:     limit,
		SortField: c.QueryParam("sortField"),
		SortOrder: c.QueryParam("sortOrder"),
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{
		"success":    true,
		"data":       res.Entries,
		"pagination": res.Pagination,
	})
}

func (h *EntryHandler) Get(c echo.Context) error {
	id, err := service.ParseEntryID(c.Param("id"))
	if err != nil {
		return err
	}
	e, err := h.Entries.Get(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": e})
}

func (h *EntryHandler) Update(c echo.Context) error {
	id, err := service.ParseEntryID(c.Param("id"))
	if err != nil {
		return err
	}
	u, _ := middleware.CurrentUser(c)
	var in service.EntryInput
	if err := c.Bind(&in); err != nil {
		return apperr.Validation("Invalid request body.")
	}
	e, err := h.Entries.Update(c.Request().Context(), *u, id, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "message": "Entry updated successfully.", "data": e})
}

func (h *EntryHandler) Delete(c echo.Context) error {
	id, err := service.ParseEntryID(c.Param("id"))
	if err != nil {
		return err
	}
	u, _ := middleware.CurrentUser(c)
	if err := h.Entries.Delete(c.Request().Context(), *u, id); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"message": "Entry deleted successfully.",
		"data":    echo.Map{"_id": id},
	})
}
