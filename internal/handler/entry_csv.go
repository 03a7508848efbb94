package handler

import (
    "net/http"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/address-book/internal/apperr"
    "github.com/iliyamo/address-book/internal/middleware"
    "github.com/iliyamo/address-book/internal/service"
)

// ImportField is the multipart field carrying the uploaded CSV.
const ImportField = "csvFile"

// Export downloads the entries matching ?search= as a CSV attachment.
func (h *EntryHandler) Export(c echo.Context) error {
    f, err := h.Transfer.Export(c.Request().Context(), c.QueryParam("search"))
    if err != nil {
        return err
    }
    c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+f.Filename+`"`)
    return c.Blob(http.StatusOK, "text/csv; charset=utf-8", f.Data)
}

// Import stores the rows of an uploaded CSV file. The status distinguishes
// full success (201), partial success (207) and total failure (500).
func (h *EntryHandler) Import(c echo.Context) error {
    fh, err := c.FormFile(ImportField)
    if err != nil {
        return apperr.Validation("No file uploaded. Send the CSV in the csvFile field.")
    }
    if err := service.ValidateUpload(fh.Filename, fh.Header.Get(echo.HeaderContentType), fh.Size, h.MaxImportBytes); err != nil {
        return err
    }
    src, err := fh.Open()
    if err != nil {
        return apperr.Unexpected("Could not read uploaded file.", err)
    }
    defer src.Close()

    u, _ := middleware.CurrentUser(c)
    res, err := h.Transfer.Import(c.Request().Context(), *u, src)
    if err != nil {
        return err
    }
    status := res.Status()
    return c.JSON(status, echo.Map{
        "success": status != http.StatusInternalServerError,
        "message": res.Message(),
        "batchId": res.BatchID,
        "summary": res.Summary,
    })
}
