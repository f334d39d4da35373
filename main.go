package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"tvcagent/internal/config"
	"tvcagent/internal/gen"
	"tvcagent/internal/session"
	"tvcagent/internal/stream"
	"tvcagent/internal/volc"
)

func main() {
	// 初始化日志
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	log.SetLevel(logrus.InfoLevel)

	mock := config.MockMode()
	llmCfg, err := config.LoadLLM()
	if err != nil {
		log.WithError(err).Fatal("加载模型配置失败")
	}
	imageCfg := config.LoadImage()
	videoCfg := config.LoadVideo()
	agentCfg := config.LoadAgent()
	serverCfg := config.LoadServer()

	// 初始化会话存储
	db, err := session.Open(serverCfg.DBPath)
	if err != nil {
		log.WithError(err).Fatal("打开会话数据库失败")
	}
	defer db.Close()
	store := session.NewStore(db)

	// 初始化生成客户端
	arkClient := volc.NewArkClient(llmCfg.BaseURL, llmCfg.APIKey, mock, log)
	var genClient gen.Client
	if mock {
		genClient = &gen.MockClient{}
	} else {
		genClient = gen.NewArkGen(arkClient, videoCfg)
	}

	// 初始化对话模型，mock 模式下不访问 Ark
	var chatModel einomodel.ToolCallingChatModel
	if !mock {
		chatModel, err = ark.NewChatModel(context.Background(), &ark.ChatModelConfig{
			APIKey:      llmCfg.APIKey,
			BaseURL:     llmCfg.BaseURL,
			Model:       llmCfg.Model,
			Temperature: &llmCfg.Temperature,
			TopP:        &llmCfg.TopP,
			MaxTokens:   &llmCfg.MaxCompletionTokens,
		})
		if err != nil {
			log.WithError(err).Fatal("初始化对话模型失败")
		}
	}

	handler := &stream.Handler{
		Store: store,
		Model: chatModel,
		Gen:   genClient,
		LLM:   llmCfg,
		Image: imageCfg,
		Video: videoCfg,
		Agent: agentCfg,
		Mock:  mock,
		Log:   log,
	}

	// 初始化Gin路由
	router := gin.Default()
	handler.Register(router)
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	srv := &http.Server{
		Addr:    serverCfg.Addr,
		Handler: router,
	}

	go func() {
		log.WithField("addr", serverCfg.Addr).Info("服务器启动")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("启动服务器失败")
		}
	}()

	// 等待中断信号后优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("关闭服务器...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("服务器关闭失败")
	}
	log.Info("服务器已关闭")
}
