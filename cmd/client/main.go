package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"ripple-chat/config"
	"ripple-chat/internal/api"
	"ripple-chat/internal/domain"
	"ripple-chat/internal/session"
	"ripple-chat/internal/socket"
	"ripple-chat/internal/storage"
	"ripple-chat/internal/store"
	"ripple-chat/pkg/logger"
)

// Line-oriented terminal client. Commands:
//
//	/users            refresh and print the roster
//	/dm <n>           open a direct chat with roster entry n
//	/group <name> n,m create a group from roster entries
//	/open <chatId>    activate a chat by id
//	/chats            list known chats
//	/file <path>      upload a file and send it to the active chat
//	/quit             exit
//
// Any other input is sent as a message to the active chat.
func main() {
	email := flag.String("email", "", "account email")
	password := flag.String("password", "", "account password")
	name := flag.String("register", "", "register a new account with this display name")
	flag.Parse()

	cfg := config.LoadConfig()
	appLogger := logger.New(cfg.AppMode)
	logger.SetGlobalLogger(appLogger)
	defer appLogger.Sync()

	if *email == "" || *password == "" {
		fmt.Fprintln(os.Stderr, "usage: client -email <email> -password <password> [-register <name>]")
		os.Exit(1)
	}

	ctx := context.Background()
	backend := api.NewClient(cfg.APIBaseURL)

	var auth api.AuthResult
	var err error
	if *name != "" {
		auth, err = backend.Register(ctx, *name, *email, *password)
	} else {
		auth, err = backend.SignIn(ctx, *email, *password)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "sign in failed: %v\n", err)
		os.Exit(1)
	}

	manager := socket.NewManager(cfg.SocketURL+"?token="+auth.Token, auth.Token, appLogger)
	st := store.New()
	sess := session.New(auth.User, manager, st, appLogger)
	defer sess.Close()

	var uploads storage.AttachmentStore
	if cfg.S3Bucket != "" {
		uploads, err = storage.NewS3Store(ctx, storage.S3Config{
			Region:     cfg.S3Region,
			Bucket:     cfg.S3Bucket,
			AccessKey:  cfg.S3AccessKey,
			SecretKey:  cfg.S3SecretKey,
			Endpoint:   cfg.S3Endpoint,
			PublicBase: cfg.S3PublicBase,
			PresignTTL: cfg.S3PresignTTL,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "attachment store unavailable: %v\n", err)
			os.Exit(1)
		}
	}

	if users, err := backend.ListUsers(ctx); err == nil {
		st.RefreshUsers(users)
	}

	fmt.Printf("signed in as %s (%s)\n", auth.User.Name, auth.User.ID)
	printUsers(st.Users(), auth.User.ID)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		switch {
		case line == "/quit":
			return
		case line == "/users":
			users, err := backend.ListUsers(ctx)
			if err != nil {
				fmt.Printf("roster fetch failed: %v\n", err)
				continue
			}
			st.RefreshUsers(users)
			printUsers(st.Users(), auth.User.ID)
		case line == "/chats":
			for _, chat := range st.Chats() {
				marker := " "
				if chat.ID == st.ActiveChatID() {
					marker = "*"
				}
				fmt.Printf("%s %s  %s (%s)\n", marker, chat.ID, chat.Name, chat.Kind)
			}
		case strings.HasPrefix(line, "/dm "):
			openDirect(ctx, backend, sess, strings.TrimSpace(strings.TrimPrefix(line, "/dm ")))
		case strings.HasPrefix(line, "/group "):
			createGroup(ctx, backend, st, strings.TrimPrefix(line, "/group "))
		case strings.HasPrefix(line, "/file "):
			sendFile(ctx, uploads, sess, strings.TrimSpace(strings.TrimPrefix(line, "/file ")))
		case strings.HasPrefix(line, "/open "):
			chatID := strings.TrimSpace(strings.TrimPrefix(line, "/open "))
			if err := sess.Open(ctx, chatID); err != nil {
				fmt.Printf("open failed: %v\n", err)
				continue
			}
			for _, msg := range st.Messages() {
				fmt.Printf("[%s] %s: %s\n", msg.CreatedAt.Format("15:04"), msg.SenderName, msg.Content)
			}
		default:
			if err := sess.Send(line, nil); err != nil {
				fmt.Printf("send failed: %v\n", err)
			}
		}
	}
}

func printUsers(users []domain.User, selfID string) {
	for i, u := range users {
		if u.ID == selfID {
			continue
		}
		status := ""
		if u.IsOnline {
			status = " (online)"
		}
		fmt.Printf("%d. %s <%s>%s\n", i, u.Name, u.Email, status)
	}
}

func openDirect(ctx context.Context, backend *api.Client, sess *session.Session, arg string) {
	st := sess.Store()
	users := st.Users()
	idx, err := strconv.Atoi(arg)
	if err != nil || idx < 0 || idx >= len(users) {
		fmt.Println("unknown roster entry")
		return
	}
	other := users[idx]

	lookup, err := backend.DirectChatLookup(ctx, sess.Self().ID, other.ID)
	if err != nil {
		fmt.Printf("direct chat lookup failed: %v\n", err)
		return
	}

	chat, _ := st.CreateOrReuseDirectChat(store.DirectChatParams{
		ChatID:        lookup.ID,
		CurrentUserID: sess.Self().ID,
		UserID:        other.ID,
		UserName:      other.Name,
		UserEmail:     other.Email,
		UserAvatar:    other.AvatarURL,
		IsUserOnline:  other.IsOnline,
		CreatedAt:     lookup.CreatedAt,
	})
	if err := sess.Open(ctx, chat.ID); err != nil {
		fmt.Printf("open failed: %v\n", err)
		return
	}
	fmt.Printf("chatting with %s (%s)\n", other.Name, chat.ID)
}

func sendFile(ctx context.Context, uploads storage.AttachmentStore, sess *session.Session, path string) {
	if uploads == nil {
		fmt.Println("uploads are disabled: no S3 bucket configured")
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Printf("read %s failed: %v\n", path, err)
		return
	}

	mimeType := mime.TypeByExtension(filepath.Ext(path))
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	att, err := uploads.Upload(ctx, filepath.Base(path), mimeType, data)
	if err != nil {
		fmt.Printf("upload failed: %v\n", err)
		return
	}
	if err := sess.Send("", []domain.Attachment{att}); err != nil {
		fmt.Printf("send failed: %v\n", err)
		return
	}
	fmt.Printf("sent %s (%d bytes)\n", att.Name, att.SizeBytes)
}

func createGroup(ctx context.Context, backend *api.Client, st *store.Store, arg string) {
	parts := strings.Fields(arg)
	if len(parts) != 2 {
		fmt.Println("usage: /group <name> <n,m,...>")
		return
	}
	name := parts[0]

	users := st.Users()
	var memberIDs []string
	for _, raw := range strings.Split(parts[1], ",") {
		idx, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil || idx < 0 || idx >= len(users) {
			fmt.Println("unknown roster entry:", raw)
			return
		}
		memberIDs = append(memberIDs, users[idx].ID)
	}

	group, err := backend.CreateGroupChat(ctx, name, memberIDs)
	if err != nil {
		fmt.Printf("group create failed: %v\n", err)
		return
	}
	chat, err := st.CreateGroupWithID(group.ID, name, memberIDs)
	if err != nil {
		fmt.Printf("group create failed: %v\n", err)
		return
	}
	fmt.Printf("created group %s (%s); /open %s to enter\n", name, chat.ID, chat.ID)
}
