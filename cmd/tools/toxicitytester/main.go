package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/safechat/backend/internal/analysis/toxicity"
	"github.com/zhouzirui/safechat/backend/internal/config"
	"github.com/zhouzirui/safechat/backend/internal/logging"
	"github.com/zhouzirui/safechat/backend/internal/mq"
	"github.com/zhouzirui/safechat/backend/internal/service/moderation"
)

func main() {
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("配置加载失败")
	}
	logging.Init(cfg.Log, "toxicitytester")
	if envErr != nil {
		log.Warn().Err(envErr).Msg("无法加载 .env，改用系统环境变量")
	}

	mode := flag.String("mode", "score", "测试模式: score 或 follow")
	text := flag.String("text", "", "score 模式下待审核的文本")
	scorer := flag.String("scorer", "auto", "打分器: auto, ml, llm 或 heuristic")
	user := flag.String("user", "tester@example.com", "累计风险值所属用户")
	timeout := flag.Duration("timeout", 30*time.Second, "score 模式的请求超时时间")

	flag.Parse()

	switch *mode {
	case "score":
		ctx, cancel := context.WithTimeout(context.Background(), *timeout)
		defer cancel()
		runScore(ctx, cfg, *scorer, *user, *text)
	case "follow":
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		runFollow(ctx, cfg)
	default:
		flag.Usage()
		log.Fatal().Msg("请通过 -mode=score 或 -mode=follow 指定测试模式")
	}
}

func buildScorers(ctx context.Context, cfg *config.Config, name string) []moderation.Scorer {
	var scorers []moderation.Scorer

	if (name == "auto" || name == "ml") && cfg.Moderation.MLURL != "" {
		scorers = append(scorers, moderation.NewHTTPScorer(cfg.Moderation.MLURL, cfg.Moderation.MLTimeout))
	} else if name == "ml" {
		log.Fatal().Msg("ml 打分器需要配置 ML_URL")
	}

	if name == "auto" || name == "llm" {
		if cfg.AI.Enabled() {
			chatModel, err := cfg.AI.NewChatModel(ctx)
			if err != nil {
				log.Fatal().Err(err).Msg("创建大模型失败")
			}
			llm, err := moderation.NewLLMScorer(ctx, chatModel)
			if err != nil {
				log.Fatal().Err(err).Msg("编译审核链失败")
			}
			scorers = append(scorers, llm)
		} else if name == "llm" {
			log.Fatal().Msg("llm 打分器需要配置 Ark 凭证与 Model")
		}
	}

	return scorers
}

func runScore(ctx context.Context, cfg *config.Config, scorerName, user, text string) {
	if strings.TrimSpace(text) == "" {
		log.Fatal().Msg("score 模式需要通过 -text 提供待审核文本")
	}

	policy := toxicity.Policy{
		CensorThreshold: cfg.Moderation.CensorThreshold,
		BlockThreshold:  cfg.Moderation.BlockThreshold,
	}
	svc := moderation.NewService(policy, moderation.WithScorers(buildScorers(ctx, cfg, scorerName)...))

	log.Info().Str("scorer", scorerName).Str("user", user).Msg("开始审核测试")

	result, err := svc.Moderate(ctx, user, text)
	if err != nil {
		log.Fatal().Err(err).Msg("审核调用失败")
	}

	for _, label := range toxicity.SortedLabels(result.Scores) {
		fmt.Printf("%-14s %.3f\n", label, result.Scores[label])
	}

	out, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(out))
}

func runFollow(ctx context.Context, cfg *config.Config) {
	if !cfg.AMQP.Enabled() {
		log.Fatal().Msg("follow 模式需要配置 AMQP_URL")
	}

	rabbit, err := mq.Connect(cfg.AMQP.URL)
	if err != nil {
		log.Fatal().Err(err).Msg("连接 RabbitMQ 失败")
	}
	defer rabbit.Close()

	if err := mq.SetupModerationExchange(rabbit, cfg.AMQP.Exchange); err != nil {
		log.Fatal().Err(err).Msg("声明 exchange 失败")
	}
	queue, err := rabbit.DeclareQueue("", cfg.AMQP.Exchange, mq.ModerationRoutingKey)
	if err != nil {
		log.Fatal().Err(err).Msg("声明队列失败")
	}

	log.Info().Str("exchange", cfg.AMQP.Exchange).Str("queue", queue.Name).Msg("等待审核事件，Ctrl+C 退出")

	err = rabbit.Consume(ctx, queue.Name, func(routingKey string, body []byte) {
		var event moderation.Event
		if err := json.Unmarshal(body, &event); err != nil {
			log.Warn().Err(err).Str("routing_key", routingKey).Msg("无法解析事件")
			return
		}
		log.Info().
			Str("routing_key", routingKey).
			Str("user", event.User).
			Float64("toxicity", event.Toxicity).
			Str("source", event.Source).
			Float64("risk", event.Risk).
			Msg("审核事件")
	})
	if err != nil {
		log.Fatal().Err(err).Msg("消费失败")
	}

	<-ctx.Done()
	log.Info().Msg("停止监听")
}
