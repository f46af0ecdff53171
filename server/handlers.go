package server

import (
	"io"
	"net/http"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/kisun-bit/undelpart/disk/undelete"
	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

var errMissingPath = errors.New("missing device path")

// statusOf 将操作错误映射为HTTP状态码.
func statusOf(err error) int {
	switch {
	case errors.Is(err, errMissingPath), errors.Is(err, undelete.ErrMalformedDescriptor):
		return http.StatusBadRequest
	case errors.Is(err, undelete.ErrNoDevices):
		return http.StatusNotFound
	case errors.Is(err, undelete.ErrPartitionMounted),
		errors.Is(err, undelete.ErrInvalidTable),
		errors.Is(err, undelete.ErrAddPartition):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(c *gin.Context, op string, err error) {
	code := statusOf(err)
	if code >= http.StatusInternalServerError {
		s.logger.Errorf("%s. %v", op, err)
	} else {
		s.logger.Warnf("%s. %v", op, err)
	}
	c.JSON(code, gin.H{"error": err.Error()})
}

// respond 以 {"path": ..., key: raw} 形式返回已编码的JSON片段.
func respond(c *gin.Context, path, key, raw string) {
	o, err := sjson.Set("{}", "path", path)
	if err == nil {
		o, err = sjson.SetRaw(o, key, raw)
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(o))
}

func respondDescriptors(c *gin.Context, path string, ds []undelete.Descriptor) error {
	raw, err := undelete.FormatDescriptors(ds)
	if err != nil {
		return err
	}
	respond(c, path, "partitions", raw)
	return nil
}

// request PUT/POST请求体 {"path": "...", "partitions": [[n, s, e], ...], "all": false}.
type request struct {
	path       string
	partitions []undelete.Descriptor
	all        bool
}

func parseRequest(c *gin.Context, needPartitions bool) (*request, error) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return nil, errors.Wrap(err, "read request body")
	}
	if !gjson.ValidBytes(body) {
		return nil, errors.Wrap(undelete.ErrMalformedDescriptor, "request body is not JSON")
	}
	req := &request{
		path: gjson.GetBytes(body, "path").String(),
		all:  gjson.GetBytes(body, "all").Bool(),
	}
	if req.path == "" {
		return nil, errMissingPath
	}
	req.path = filepath.Clean(req.path)
	parts := gjson.GetBytes(body, "partitions")
	if !parts.Exists() {
		if needPartitions {
			return nil, errors.Wrap(undelete.ErrMalformedDescriptor, "missing partitions")
		}
		return req, nil
	}
	if req.partitions, err = undelete.ParseDescriptors([]byte(parts.Raw)); err != nil {
		return nil, err
	}
	return req, nil
}

func queryPath(c *gin.Context) (string, error) {
	path := c.Query("path")
	if path == "" {
		return "", errMissingPath
	}
	return filepath.Clean(path), nil
}

func (s *Server) getDisks(c *gin.Context) {
	disks, err := s.session.GetDiskList()
	if err != nil {
		s.fail(c, "getDisks", err)
		return
	}
	o := `{"disks":[]}`
	for el := disks.Front(); el != nil; el = el.Next() {
		if o, err = sjson.Set(o, "disks.-1", gin.H{"path": el.Key, "record": el.Value}); err != nil {
			s.fail(c, "getDisks", err)
			return
		}
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(o))
}

func (s *Server) getPartitions(c *gin.Context) {
	path, err := queryPath(c)
	if err != nil {
		s.fail(c, "getPartitions", err)
		return
	}
	defer s.locks.lock(path)()
	ds, err := s.session.GetPartitionList(path)
	if err == nil {
		err = respondDescriptors(c, path, ds)
	}
	if err != nil {
		s.fail(c, "getPartitions", err)
	}
}

func (s *Server) getRescuable(c *gin.Context) {
	path, err := queryPath(c)
	if err != nil {
		s.fail(c, "getRescuable", err)
		return
	}
	defer s.locks.lock(path)()
	ds, err := s.session.GetRescuable(path)
	if err == nil {
		err = respondDescriptors(c, path, ds)
	}
	if err != nil {
		s.fail(c, "getRescuable", err)
	}
}

func (s *Server) setPartitions(c *gin.Context) {
	req, err := parseRequest(c, true)
	if err != nil {
		s.fail(c, "setPartitions", err)
		return
	}
	defer s.locks.lock(req.path)()
	if _, err = s.session.SetPartitionList(req.path, req.partitions); err != nil {
		s.fail(c, "setPartitions", err)
		return
	}
	ds, err := s.session.GetPartitionList(req.path)
	if err == nil {
		err = respondDescriptors(c, req.path, ds)
	}
	if err != nil {
		s.fail(c, "setPartitions", err)
	}
}

func (s *Server) planPartitions(c *gin.Context) {
	req, err := parseRequest(c, true)
	if err != nil {
		s.fail(c, "planPartitions", err)
		return
	}
	defer s.locks.lock(req.path)()
	plan, err := s.session.PlanPartitionList(req.path, req.partitions)
	if err != nil {
		s.fail(c, "planPartitions", err)
		return
	}
	o := "{}"
	for _, set := range []struct {
		key string
		ds  []undelete.Descriptor
	}{{"keep", plan.Keep}, {"erase", plan.Erase}, {"add", plan.Add}} {
		raw, err := undelete.FormatDescriptors(set.ds)
		if err == nil {
			o, err = sjson.SetRaw(o, set.key, raw)
		}
		if err != nil {
			s.fail(c, "planPartitions", err)
			return
		}
	}
	respond(c, req.path, "plan", o)
}

func (s *Server) rescue(c *gin.Context) {
	req, err := parseRequest(c, false)
	if err != nil {
		s.fail(c, "rescue", err)
		return
	}
	defer s.locks.lock(req.path)()
	candidates := req.partitions
	if req.all {
		if candidates, err = s.session.GetRescuable(req.path); err != nil {
			s.fail(c, "rescue", err)
			return
		}
	} else if candidates == nil {
		s.fail(c, "rescue", errors.Wrap(undelete.ErrMalformedDescriptor, "missing partitions"))
		return
	}
	rescued, err := s.session.Rescue(req.path, candidates)
	if err == nil {
		err = respondDescriptors(c, req.path, rescued)
	}
	if err != nil {
		s.fail(c, "rescue", err)
	}
}
