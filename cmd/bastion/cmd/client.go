package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/calderw/bastion/api"
	"github.com/calderw/bastion/harden"
	"github.com/calderw/bastion/pake"
)

var (
	serverURL        string
	userID           string
	password         string
	totpCode         string
	enableTOTP       bool
	argonTime        uint32
	argonMemory      uint32
	argonParallelism uint8
)

var clientCmd = &cobra.Command{
	Use:   "client",
	Short: "Run the client side of the protocol against a server",
}

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Register a new user",
	RunE: func(cmd *cobra.Command, args []string) error {
		secret, err := hardenPassword()
		if err != nil {
			return err
		}

		flow, request, err := pake.NewRegisterFlow(userID, secret)
		if err != nil {
			return err
		}

		var initResp api.RegisterInitResponse
		if err := postJSON("/register-init", api.RegisterInitRequest{
			UserID:  userID,
			Request: request,
		}, &initResp); err != nil {
			return err
		}

		record, err := flow.Complete(initResp.Response)
		if err != nil {
			return err
		}

		var finResp api.RegisterFinishResponse
		if err := postJSON("/register-finish", api.RegisterFinishRequest{
			UserID:     userID,
			Record:     record,
			EnableTOTP: enableTOTP,
		}, &finResp); err != nil {
			return err
		}

		fmt.Printf("registered %s\n", userID)
		if finResp.TOTPSecret != "" {
			fmt.Printf("TOTP secret: %s\n", finResp.TOTPSecret)
			fmt.Printf("enrollment URL: %s\n", finResp.OTPAuthURL)
		}
		return nil
	},
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in and print the derived session key",
	RunE: func(cmd *cobra.Command, args []string) error {
		secret, err := hardenPassword()
		if err != nil {
			return err
		}

		flow, request, err := pake.NewLoginFlow(userID, secret)
		if err != nil {
			return err
		}

		var initResp api.LoginInitResponse
		if err := postJSON("/login-init", api.LoginInitRequest{
			UserID:  userID,
			Request: request,
		}, &initResp); err != nil {
			return err
		}

		finish, sessionKey, err := flow.Complete(initResp.Response)
		if err != nil {
			return fmt.Errorf("login rejected: %w", err)
		}

		var finResp api.LoginFinishResponse
		if err := postJSON("/login-finish", api.LoginFinishRequest{
			UserID: userID,
			Finish: finish,
		}, &finResp); err != nil {
			return err
		}
		if !finResp.Success {
			return fmt.Errorf("login rejected")
		}

		if finResp.SecondFactorRequired {
			if totpCode == "" {
				return fmt.Errorf("second factor required; pass --totp-code")
			}
			var verifyResp api.VerifyTwoFactorResponse
			if err := postJSON("/verify-2fa", api.VerifyTwoFactorRequest{
				UserID: userID,
				Code:   totpCode,
			}, &verifyResp); err != nil {
				return err
			}
			if !verifyResp.Success {
				return fmt.Errorf("second factor rejected")
			}
			finResp.SessionKey = verifyResp.SessionKey
		}

		if !bytes.Equal(sessionKey, finResp.SessionKey) {
			return fmt.Errorf("session key mismatch between client and server")
		}
		fmt.Printf("logged in as %s\nsession key: %x\n", userID, sessionKey)
		return nil
	},
}

func hardenPassword() ([]byte, error) {
	params := harden.Params{
		Time:        argonTime,
		MemoryKiB:   argonMemory,
		Parallelism: argonParallelism,
	}
	return harden.Harden(password, harden.Salt(userID), params)
}

func postJSON(path string, body, out any) error {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return err
	}
	resp, err := http.Post(serverURL+path, "application/json", &buf)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		var errResp api.ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&errResp); err == nil && errResp.Error != "" {
			return fmt.Errorf("%s: %s", resp.Status, errResp.Error)
		}
		return fmt.Errorf("%s %s: %s", http.MethodPost, path, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func init() {
	rootCmd.AddCommand(clientCmd)
	clientCmd.AddCommand(registerCmd)
	clientCmd.AddCommand(loginCmd)

	defaults := harden.DefaultParams()
	clientCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "Server base URL")
	clientCmd.PersistentFlags().StringVar(&userID, "user", "", "User ID")
	clientCmd.PersistentFlags().StringVar(&password, "password", "", "Password")
	clientCmd.PersistentFlags().Uint32Var(&argonTime, "argon-time", defaults.Time, "Argon2id time parameter")
	clientCmd.PersistentFlags().Uint32Var(&argonMemory, "argon-memory", defaults.MemoryKiB, "Argon2id memory in KiB")
	clientCmd.PersistentFlags().Uint8Var(&argonParallelism, "argon-parallelism", defaults.Parallelism, "Argon2id parallelism")
	registerCmd.Flags().BoolVar(&enableTOTP, "enable-totp", false, "Enroll a TOTP second factor")
	loginCmd.Flags().StringVar(&totpCode, "totp-code", "", "TOTP code for the second factor")

	clientCmd.MarkPersistentFlagRequired("user")
	clientCmd.MarkPersistentFlagRequired("password")
}
