package rest

import (
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/KevinKickass/OpenMachineSensors/internal/attr"
	"github.com/gin-gonic/gin"
)

// GET /api/v1/sensors/:id/attributes
func (s *Server) listAttributes(c *gin.Context) {
	sensor, ok := s.lookupSensor(c)
	if !ok {
		return
	}

	infos := attr.List()
	access := make(map[string]string, len(infos))
	for _, info := range infos {
		access[info.Name] = info.Access.String()
	}

	c.JSON(http.StatusOK, gin.H{
		"sensor": sensor.Name,
		"values": sensor.Attrs.Snapshot(),
		"access": access,
	})
}

// GET /api/v1/sensors/:id/attributes/:name
func (s *Server) getAttribute(c *gin.Context) {
	sensor, ok := s.lookupSensor(c)
	if !ok {
		return
	}

	name := c.Param("name")
	value, err := sensor.Attrs.Get(name)
	if err != nil {
		s.writeError(c, "Failed to read attribute", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"name":  name,
		"value": value,
	})
}

// PUT /api/v1/sensors/:id/attributes/:name
func (s *Server) setAttribute(c *gin.Context) {
	sensor, ok := s.lookupSensor(c)
	if !ok {
		return
	}

	var req struct {
		Value string `json:"value" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body", err)
		return
	}

	name := c.Param("name")
	if err := sensor.Attrs.Set(name, req.Value); err != nil {
		s.writeError(c, "Failed to write attribute", err)
		return
	}

	value, _ := sensor.Attrs.Get(name)
	c.JSON(http.StatusOK, gin.H{
		"name":  name,
		"value": value,
	})
}

// GET /api/v1/sensors/:id/bin_data?offset=&count=
func (s *Server) readBinData(c *gin.Context) {
	sensor, ok := s.lookupSensor(c)
	if !ok {
		return
	}

	offset, err := queryInt(c, "offset", 0)
	if err != nil {
		badRequest(c, "Invalid offset", err)
		return
	}
	count, err := queryInt(c, "count", attr.BinDataSize)
	if err != nil {
		badRequest(c, "Invalid count", err)
		return
	}

	data := sensor.Attrs.ReadBinary(int64(offset), count)
	format, _ := sensor.Attrs.Get(attr.BinDataFormat)

	c.JSON(http.StatusOK, gin.H{
		"offset": offset,
		"count":  len(data),
		"format": format,
		"data":   data,
	})
}

// PUT /api/v1/sensors/:id/bin_data?offset= with the raw bytes as body
func (s *Server) writeBinData(c *gin.Context) {
	sensor, ok := s.lookupSensor(c)
	if !ok {
		return
	}

	offset, err := queryInt(c, "offset", 0)
	if err != nil {
		badRequest(c, "Invalid offset", err)
		return
	}

	data, err := io.ReadAll(io.LimitReader(c.Request.Body, attr.BinDataSize+1))
	if err != nil {
		badRequest(c, "Failed to read body", err)
		return
	}
	if len(data) == 0 || len(data) > attr.BinDataSize {
		badRequest(c, "Invalid body", fmt.Errorf("body must be 1..%d bytes", attr.BinDataSize))
		return
	}

	n, err := sensor.Attrs.WriteBinary(int64(offset), data)
	if err != nil {
		s.writeError(c, "Failed to write bin_data", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"offset":  offset,
		"written": n,
	})
}

func queryInt(c *gin.Context, key string, def int) (int, error) {
	v := c.Query(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", key)
	}
	return n, nil
}
