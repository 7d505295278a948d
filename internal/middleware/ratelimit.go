package middleware

import (
	"fmt"
	"net/http"

	sentinel "github.com/alibaba/sentinel-golang/api"
	"github.com/alibaba/sentinel-golang/core/base"
	"github.com/alibaba/sentinel-golang/core/config"
	"github.com/alibaba/sentinel-golang/core/flow"
	"github.com/gin-gonic/gin"
)

// InitSentinel 初始化 sentinel，日志写到 logDir
func InitSentinel(appName, logDir string) error {
	conf := config.NewDefaultConfig()
	conf.Sentinel.App.Name = appName
	if logDir != "" {
		conf.Sentinel.Log.Dir = logDir
	}
	if err := sentinel.InitWithConfig(conf); err != nil {
		return fmt.Errorf("failed to init sentinel: %w", err)
	}
	return nil
}

// NewRateLimit 为 resource 加载 QPS 流控规则，超出时返回 429；qps <= 0 不限流
func NewRateLimit(resource string, qps float64) (gin.HandlerFunc, error) {
	if qps <= 0 {
		return func(c *gin.Context) { c.Next() }, nil
	}

	_, err := flow.LoadRules([]*flow.Rule{
		{
			Resource:               resource,
			TokenCalculateStrategy: flow.Direct,
			ControlBehavior:        flow.Reject,
			Threshold:              qps,
			StatIntervalInMs:       1000,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load flow rule: %w", err)
	}

	return func(c *gin.Context) {
		entry, blockErr := sentinel.Entry(resource, sentinel.WithTrafficType(base.Inbound))
		if blockErr != nil {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Too many requests, please retry later"})
			return
		}
		defer entry.Exit()
		c.Next()
	}, nil
}
