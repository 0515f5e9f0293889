package database

// MySQLSchema creates the tables used by the ticketing service.  seats and
// events carry a version column for optimistic locking; seats.ticket_id
// links a sold seat to the ticket that owns it.
var MySQLSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id            BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		username      VARCHAR(64)  NOT NULL,
		email         VARCHAR(255) NOT NULL DEFAULT '',
		password_hash VARCHAR(255) NOT NULL,
		role          VARCHAR(16)  NOT NULL DEFAULT 'USER',
		created_at    DATETIME     NOT NULL,
		UNIQUE KEY uq_users_username (username)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS events (
		id          BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		title       VARCHAR(255) NOT NULL,
		description TEXT         NOT NULL,
		city        VARCHAR(128) NOT NULL,
		venue       VARCHAR(255) NOT NULL,
		type        VARCHAR(64)  NOT NULL,
		date_time   DATETIME     NOT NULL,
		total_seats INT          NOT NULL,
		price_cents BIGINT       NOT NULL,
		version     INT UNSIGNED NOT NULL DEFAULT 0,
		created_at  DATETIME     NOT NULL,
		KEY idx_events_city_date (city, date_time)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS tickets (
		id          BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		event_id    BIGINT UNSIGNED NOT NULL,
		username    VARCHAR(64)     NOT NULL,
		quantity    INT             NOT NULL,
		price_cents BIGINT          NOT NULL,
		created_at  DATETIME        NOT NULL,
		KEY idx_tickets_event_created (event_id, created_at),
		KEY idx_tickets_username (username),
		CONSTRAINT fk_tickets_event FOREIGN KEY (event_id) REFERENCES events(id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS seats (
		id         BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		event_id   BIGINT UNSIGNED NOT NULL,
		row_label  VARCHAR(8)      NOT NULL,
		number     INT             NOT NULL,
		sold       TINYINT(1)      NOT NULL DEFAULT 0,
		ticket_id  BIGINT UNSIGNED NULL,
		version    INT UNSIGNED    NOT NULL DEFAULT 0,
		UNIQUE KEY uq_seats_event_row_number (event_id, row_label, number),
		KEY idx_seats_ticket (ticket_id),
		CONSTRAINT fk_seats_event FOREIGN KEY (event_id) REFERENCES events(id),
		CONSTRAINT fk_seats_ticket FOREIGN KEY (ticket_id) REFERENCES tickets(id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}
