package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	ENV_PREFIX = "EMR_CONNECTOR"

	URL_APP_NAME                       = "URL_App_Name"
	URL_PATH_PREFIX                    = "URL_Path_Prefix"
	URL_BASE_PATH                      = "URL_Base_Path"
	HTTP_SHUTDOWN_TIMEOUT              = "HTTP_Shutdown_Timeout"
	SERVICE_TO_SERVICE_CREDENTIALS     = "Service_To_Service_Credentials"
	PROFILE                            = "Enable_Profile"
	DESTINATION_DATABASE_HOST          = "Destination_Database_Host"
	DESTINATION_DATABASE_PORT          = "Destination_Database_Port"
	DESTINATION_DATABASE_USER          = "Destination_Database_User"
	DESTINATION_DATABASE_PASSWORD      = "Destination_Database_Password"
	DESTINATION_DATABASE_NAME          = "Destination_Database_Name"
	DESTINATION_DATABASE_SSL_MODE      = "Destination_Database_SSL_Mode"
	DESTINATION_DATABASE_SSL_ROOT_CERT = "Destination_Database_SSL_Root_Cert"
	DESTINATION_DATABASE_QUERY_TIMEOUT = "Destination_Database_Query_Timeout"
	HOSPITALS_CONFIG_FILE              = "Hospitals_Config_File"
	SOURCE_POOL_SIZE                   = "Source_Pool_Size"
	SYNC_BATCH_SIZE                    = "Sync_Batch_Size"
	POOLED_SYNC_INTERVAL               = "Pooled_Sync_Interval"
	SINGLE_SYNC_INTERVAL               = "Single_Sync_Interval"
	REST_SYNC_INTERVAL                 = "Rest_Sync_Interval"
	ACCESS_WINDOW_FRESH_DURATION       = "Access_Window_Fresh_Duration"
	ACCESS_WINDOW_EDIT_GRACE_DURATION  = "Access_Window_Edit_Grace_Duration"
	IDENTITY_CACHE_SIZE                = "Identity_Cache_Size"
	BROKERS                            = "Kafka_Brokers"
	EVENTS_TOPIC                       = "Kafka_Events_Topic"
	EVENTS_BATCH_SIZE                  = "Kafka_Events_Batch_Size"
	EVENTS_BATCH_BYTES                 = "Kafka_Events_Batch_Bytes"
	KAFKA_USERNAME                     = "Kafka_Username"
	KAFKA_PASSWORD                     = "Kafka_Password"
	KAFKA_SASL_MECHANISM               = "Kafka_SASL_Mechanism"
	KAFKA_CA                           = "Kafka_CA"
	REST_SOURCE_BASE_URL               = "Rest_Source_Base_Url"
	REST_SOURCE_HOSPITAL_ID            = "Rest_Source_Hospital_Id"
	REST_SOURCE_USERNAME               = "Rest_Source_Username"
	REST_SOURCE_PASSWORD               = "Rest_Source_Password"
	REST_SOURCE_TIMEOUT                = "Rest_Source_Timeout"
)

type Config struct {
	UrlAppName                      string
	UrlPathPrefix                   string
	UrlBasePath                     string
	HttpShutdownTimeout             time.Duration
	ServiceToServiceCredentials     map[string]interface{}
	Profile                         bool
	DestinationDatabaseHost         string
	DestinationDatabasePort         int
	DestinationDatabaseUser         string
	DestinationDatabasePassword     string
	DestinationDatabaseName         string
	DestinationDatabaseSslMode      string
	DestinationDatabaseSslRootCert  string
	DestinationDatabaseQueryTimeout time.Duration
	HospitalsConfigFile             string
	SourcePoolSize                  int
	SyncBatchSize                   int
	PooledSyncInterval              time.Duration
	SingleSyncInterval              time.Duration
	RestSyncInterval                time.Duration
	AccessWindowFreshDuration       time.Duration
	AccessWindowEditGraceDuration   time.Duration
	IdentityCacheSize               int
	KafkaBrokers                    []string
	KafkaEventsTopic                string
	KafkaEventsBatchSize            int
	KafkaEventsBatchBytes           int
	KafkaUsername                   string
	KafkaPassword                   string
	KafkaSASLMechanism              string
	KafkaCA                         string
	RestSourceBaseUrl               string
	RestSourceHospitalId            string
	RestSourceUsername              string
	RestSourcePassword              string
	RestSourceTimeout               time.Duration
}

func (c Config) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s\n", URL_PATH_PREFIX, c.UrlPathPrefix)
	fmt.Fprintf(&b, "%s: %s\n", URL_APP_NAME, c.UrlAppName)
	fmt.Fprintf(&b, "%s: %s\n", URL_BASE_PATH, c.UrlBasePath)
	fmt.Fprintf(&b, "%s: %s\n", HTTP_SHUTDOWN_TIMEOUT, c.HttpShutdownTimeout)
	fmt.Fprintf(&b, "%s: %t\n", PROFILE, c.Profile)
	fmt.Fprintf(&b, "%s: %s\n", DESTINATION_DATABASE_HOST, c.DestinationDatabaseHost)
	fmt.Fprintf(&b, "%s: %d\n", DESTINATION_DATABASE_PORT, c.DestinationDatabasePort)
	fmt.Fprintf(&b, "%s: %s\n", DESTINATION_DATABASE_NAME, c.DestinationDatabaseName)
	fmt.Fprintf(&b, "%s: %s\n", DESTINATION_DATABASE_SSL_MODE, c.DestinationDatabaseSslMode)
	fmt.Fprintf(&b, "%s: %s\n", DESTINATION_DATABASE_QUERY_TIMEOUT, c.DestinationDatabaseQueryTimeout)
	fmt.Fprintf(&b, "%s: %s\n", HOSPITALS_CONFIG_FILE, c.HospitalsConfigFile)
	fmt.Fprintf(&b, "%s: %d\n", SOURCE_POOL_SIZE, c.SourcePoolSize)
	fmt.Fprintf(&b, "%s: %d\n", SYNC_BATCH_SIZE, c.SyncBatchSize)
	fmt.Fprintf(&b, "%s: %s\n", POOLED_SYNC_INTERVAL, c.PooledSyncInterval)
	fmt.Fprintf(&b, "%s: %s\n", SINGLE_SYNC_INTERVAL, c.SingleSyncInterval)
	fmt.Fprintf(&b, "%s: %s\n", REST_SYNC_INTERVAL, c.RestSyncInterval)
	fmt.Fprintf(&b, "%s: %s\n", ACCESS_WINDOW_FRESH_DURATION, c.AccessWindowFreshDuration)
	fmt.Fprintf(&b, "%s: %s\n", ACCESS_WINDOW_EDIT_GRACE_DURATION, c.AccessWindowEditGraceDuration)
	fmt.Fprintf(&b, "%s: %d\n", IDENTITY_CACHE_SIZE, c.IdentityCacheSize)
	fmt.Fprintf(&b, "%s: %s\n", BROKERS, c.KafkaBrokers)
	fmt.Fprintf(&b, "%s: %s\n", EVENTS_TOPIC, c.KafkaEventsTopic)
	fmt.Fprintf(&b, "%s: %d\n", EVENTS_BATCH_SIZE, c.KafkaEventsBatchSize)
	fmt.Fprintf(&b, "%s: %d\n", EVENTS_BATCH_BYTES, c.KafkaEventsBatchBytes)
	fmt.Fprintf(&b, "%s: %s\n", REST_SOURCE_BASE_URL, c.RestSourceBaseUrl)
	fmt.Fprintf(&b, "%s: %s\n", REST_SOURCE_HOSPITAL_ID, c.RestSourceHospitalId)
	fmt.Fprintf(&b, "%s: %s\n", REST_SOURCE_TIMEOUT, c.RestSourceTimeout)
	return b.String()
}

func GetConfig() *Config {
	options := viper.New()

	options.SetDefault(URL_PATH_PREFIX, "api")
	options.SetDefault(URL_APP_NAME, "emr-connector")
	options.SetDefault(HTTP_SHUTDOWN_TIMEOUT, 2)
	options.SetDefault(SERVICE_TO_SERVICE_CREDENTIALS, "")
	options.SetDefault(PROFILE, false)
	options.SetDefault(DESTINATION_DATABASE_HOST, "localhost")
	options.SetDefault(DESTINATION_DATABASE_PORT, 5432)
	options.SetDefault(DESTINATION_DATABASE_USER, "emr_connector")
	options.SetDefault(DESTINATION_DATABASE_PASSWORD, "emr_connector")
	options.SetDefault(DESTINATION_DATABASE_NAME, "patient_records")
	options.SetDefault(DESTINATION_DATABASE_SSL_MODE, "disable")
	options.SetDefault(DESTINATION_DATABASE_SSL_ROOT_CERT, "db_ssl_root_cert.pem")
	options.SetDefault(DESTINATION_DATABASE_QUERY_TIMEOUT, 5)
	options.SetDefault(HOSPITALS_CONFIG_FILE, "hospitals.json")
	options.SetDefault(SOURCE_POOL_SIZE, 5)
	options.SetDefault(SYNC_BATCH_SIZE, 500)
	options.SetDefault(POOLED_SYNC_INTERVAL, 60)
	options.SetDefault(SINGLE_SYNC_INTERVAL, 60)
	options.SetDefault(REST_SYNC_INTERVAL, 300)
	options.SetDefault(ACCESS_WINDOW_FRESH_DURATION, 7200)
	options.SetDefault(ACCESS_WINDOW_EDIT_GRACE_DURATION, 10800)
	options.SetDefault(IDENTITY_CACHE_SIZE, 1024)
	options.SetDefault(BROKERS, []string{})
	options.SetDefault(EVENTS_TOPIC, "platform.emr-connector.sync-events")
	options.SetDefault(EVENTS_BATCH_SIZE, 100)
	options.SetDefault(EVENTS_BATCH_BYTES, 1048576)
	options.SetDefault(KAFKA_USERNAME, "")
	options.SetDefault(KAFKA_PASSWORD, "")
	options.SetDefault(KAFKA_SASL_MECHANISM, "")
	options.SetDefault(KAFKA_CA, "")
	options.SetDefault(REST_SOURCE_BASE_URL, "http://localhost:8090/ws/rest")
	options.SetDefault(REST_SOURCE_HOSPITAL_ID, "")
	options.SetDefault(REST_SOURCE_USERNAME, "")
	options.SetDefault(REST_SOURCE_PASSWORD, "")
	options.SetDefault(REST_SOURCE_TIMEOUT, 30)

	options.SetEnvPrefix(ENV_PREFIX)
	options.AutomaticEnv()

	return &Config{
		UrlPathPrefix:                   options.GetString(URL_PATH_PREFIX),
		UrlAppName:                      options.GetString(URL_APP_NAME),
		UrlBasePath:                     buildUrlBasePath(options.GetString(URL_PATH_PREFIX), options.GetString(URL_APP_NAME)),
		HttpShutdownTimeout:             options.GetDuration(HTTP_SHUTDOWN_TIMEOUT) * time.Second,
		ServiceToServiceCredentials:     options.GetStringMap(SERVICE_TO_SERVICE_CREDENTIALS),
		Profile:                         options.GetBool(PROFILE),
		DestinationDatabaseHost:         options.GetString(DESTINATION_DATABASE_HOST),
		DestinationDatabasePort:         options.GetInt(DESTINATION_DATABASE_PORT),
		DestinationDatabaseUser:         options.GetString(DESTINATION_DATABASE_USER),
		DestinationDatabasePassword:     options.GetString(DESTINATION_DATABASE_PASSWORD),
		DestinationDatabaseName:         options.GetString(DESTINATION_DATABASE_NAME),
		DestinationDatabaseSslMode:      options.GetString(DESTINATION_DATABASE_SSL_MODE),
		DestinationDatabaseSslRootCert:  options.GetString(DESTINATION_DATABASE_SSL_ROOT_CERT),
		DestinationDatabaseQueryTimeout: options.GetDuration(DESTINATION_DATABASE_QUERY_TIMEOUT) * time.Second,
		HospitalsConfigFile:             options.GetString(HOSPITALS_CONFIG_FILE),
		SourcePoolSize:                  options.GetInt(SOURCE_POOL_SIZE),
		SyncBatchSize:                   options.GetInt(SYNC_BATCH_SIZE),
		PooledSyncInterval:              options.GetDuration(POOLED_SYNC_INTERVAL) * time.Second,
		SingleSyncInterval:              options.GetDuration(SINGLE_SYNC_INTERVAL) * time.Second,
		RestSyncInterval:                options.GetDuration(REST_SYNC_INTERVAL) * time.Second,
		AccessWindowFreshDuration:       options.GetDuration(ACCESS_WINDOW_FRESH_DURATION) * time.Second,
		AccessWindowEditGraceDuration:   options.GetDuration(ACCESS_WINDOW_EDIT_GRACE_DURATION) * time.Second,
		IdentityCacheSize:               options.GetInt(IDENTITY_CACHE_SIZE),
		KafkaBrokers:                    options.GetStringSlice(BROKERS),
		KafkaEventsTopic:                options.GetString(EVENTS_TOPIC),
		KafkaEventsBatchSize:            options.GetInt(EVENTS_BATCH_SIZE),
		KafkaEventsBatchBytes:           options.GetInt(EVENTS_BATCH_BYTES),
		KafkaUsername:                   options.GetString(KAFKA_USERNAME),
		KafkaPassword:                   options.GetString(KAFKA_PASSWORD),
		KafkaSASLMechanism:              options.GetString(KAFKA_SASL_MECHANISM),
		KafkaCA:                         options.GetString(KAFKA_CA),
		RestSourceBaseUrl:               options.GetString(REST_SOURCE_BASE_URL),
		RestSourceHospitalId:            options.GetString(REST_SOURCE_HOSPITAL_ID),
		RestSourceUsername:              options.GetString(REST_SOURCE_USERNAME),
		RestSourcePassword:              options.GetString(REST_SOURCE_PASSWORD),
		RestSourceTimeout:               options.GetDuration(REST_SOURCE_TIMEOUT) * time.Second,
	}
}

func buildUrlBasePath(pathPrefix string, appName string) string {
	return fmt.Sprintf("/%s/%s/v1", pathPrefix, appName)
}
